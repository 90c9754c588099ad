package replica

import (
	"context"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/patch"
	"github.com/joshuapare/heapkit/internal/logger"
)

const tracerName = "github.com/joshuapare/heapkit/heap/replica"

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Rate caps frames per second. Zero disables throttling.
	Rate rate.Limit

	// Burst is the limiter bucket size. Default: 1.
	Burst int

	// Heartbeat sends a frame even when a tick changed nothing, so the
	// follower can tell a quiet leader from a dead one.
	Heartbeat bool

	// Logger receives per-frame debug records. Default: logger.L.
	Logger *slog.Logger
}

// Publisher turns successive states of an allocator into frames.
// A Publisher is not safe for concurrent use.
type Publisher struct {
	a       *heap.Allocator
	w       io.Writer
	id      uuid.UUID
	seq     uint64
	prev    []byte // snapshot sent by the last frame
	opts    PublisherOptions
	limiter *rate.Limiter
	log     *slog.Logger
	tracer  trace.Tracer
}

// NewPublisher returns a Publisher writing frames for a to w under a fresh
// stream id. A nil opts uses the defaults.
func NewPublisher(a *heap.Allocator, w io.Writer, opts *PublisherOptions) *Publisher {
	var o PublisherOptions
	if opts != nil {
		o = *opts
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.Logger == nil {
		o.Logger = logger.L
	}

	p := &Publisher{
		a:      a,
		w:      w,
		id:     uuid.New(),
		opts:   o,
		log:    o.Logger,
		tracer: otel.Tracer(tracerName),
	}
	if o.Rate > 0 {
		p.limiter = rate.NewLimiter(o.Rate, o.Burst)
	}
	return p
}

// StreamID returns the id stamped on every frame.
func (p *Publisher) StreamID() uuid.UUID { return p.id }

// Seq returns the sequence number the next frame will carry.
func (p *Publisher) Seq() uint64 { return p.seq }

// ForceKeyframe makes the next Publish send a full snapshot, for a
// follower that joined late or reported an error.
func (p *Publisher) ForceKeyframe() { p.prev = nil }

// Publish sends the allocator's current state: a keyframe on the first call
// or after the snapshot length changed, a patch against the previous frame
// otherwise. A tick without changes sends nothing unless Heartbeat is set.
// The allocator must be quiescent for the duration of the call.
func (p *Publisher) Publish(ctx context.Context) (err error) {
	ctx, span := p.tracer.Start(ctx, "replica.publish",
		trace.WithAttributes(attribute.String("stream", p.id.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "replica: publish throttled")
		}
	}

	snap := p.a.Serialize()
	f := Frame{Stream: p.id, Seq: p.seq}

	if p.prev == nil || len(p.prev) != len(snap) {
		f.Kind, f.Payload = KindKeyframe, snap
	} else {
		d, err := patch.GetDiff(p.prev, snap)
		if err != nil {
			return err
		}
		if d.IsEmpty() && !p.opts.Heartbeat {
			span.SetAttributes(attribute.Bool("skipped", true))
			return nil
		}
		wire, err := d.MarshalBinary()
		if err != nil {
			return err
		}
		f.Kind, f.Payload = KindPatch, wire
		span.SetAttributes(attribute.Int("runs", d.Runs()), attribute.Int("changed_bytes", d.ChangedBytes()))
	}

	span.SetAttributes(
		attribute.Int64("seq", int64(f.Seq)),
		attribute.Int("kind", int(f.Kind)),
		attribute.Int("payload_bytes", len(f.Payload)),
	)
	if err := WriteFrame(p.w, f); err != nil {
		return errors.Wrapf(err, "replica: write frame %d", f.Seq)
	}

	p.log.Debug("frame published", "stream", p.id, "seq", f.Seq, "kind", f.Kind, "bytes", len(f.Payload))
	p.prev = snap
	p.seq++
	return nil
}
