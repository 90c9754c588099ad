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

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/patch"
	"github.com/joshuapare/heapkit/internal/logger"
)

// Subscriber replays frames onto a follower allocator.
// A Subscriber is not safe for concurrent use.
type Subscriber struct {
	a      *heap.Allocator
	r      io.Reader
	id     uuid.UUID // zero until the first keyframe
	next   uint64
	synced bool
	log    *slog.Logger
	tracer trace.Tracer
}

// NewSubscriber returns a Subscriber reading frames from r into a.
func NewSubscriber(a *heap.Allocator, r io.Reader) *Subscriber {
	return &Subscriber{a: a, r: r, log: logger.L, tracer: otel.Tracer(tracerName)}
}

// WithLogger sets the logger for per-frame debug records.
func (s *Subscriber) WithLogger(l *slog.Logger) *Subscriber {
	s.log = l
	return s
}

// StreamID returns the stream the Subscriber is locked to, or the zero
// UUID before the first keyframe.
func (s *Subscriber) StreamID() uuid.UUID { return s.id }

// Synced reports whether the follower holds a state from the stream.
func (s *Subscriber) Synced() bool { return s.synced }

// Next reads and applies one frame. It returns io.EOF when the stream ends
// cleanly. The first frame must be a keyframe; a keyframe from another
// stream is rejected like any other foreign frame. After ErrSequenceGap or
// a failed apply the follower stays unsynced until the next keyframe.
//
// ctx is checked before the read and carries the trace span; a blocked read
// is only interrupted by closing r.
func (s *Subscriber) Next(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := s.tracer.Start(ctx, "replica.apply")
	defer func() {
		if err != nil && !errors.Is(err, io.EOF) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	f, err := ReadFrame(s.r)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("stream", f.Stream.String()),
		attribute.Int64("seq", int64(f.Seq)),
		attribute.Int("kind", int(f.Kind)),
		attribute.Int("payload_bytes", len(f.Payload)),
	)

	if s.id != uuid.Nil && f.Stream != s.id {
		return errors.Wrapf(ErrStreamMismatch, "got %s, following %s", f.Stream, s.id)
	}

	switch f.Kind {
	case KindKeyframe:
		if err := s.a.Restore(f.Payload); err != nil {
			s.synced = false
			return errors.Wrapf(err, "replica: keyframe %d", f.Seq)
		}
		s.id = f.Stream
	case KindPatch:
		if !s.synced || f.Seq != s.next {
			s.synced = false
			return errors.Wrapf(ErrSequenceGap, "got frame %d, want %d", f.Seq, s.next)
		}
		var p patch.Patch
		if err := p.UnmarshalBinary(f.Payload); err != nil {
			s.synced = false
			return errors.Wrapf(err, "replica: frame %d", f.Seq)
		}
		if err := p.Apply(s.a); err != nil {
			s.synced = false
			return errors.Wrapf(err, "replica: frame %d", f.Seq)
		}
	}

	s.synced = true
	s.next = f.Seq + 1
	s.log.Debug("frame applied", "stream", f.Stream, "seq", f.Seq, "kind", f.Kind)
	return nil
}
