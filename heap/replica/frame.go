package replica

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/joshuapare/heapkit/internal/format"
	"github.com/joshuapare/heapkit/internal/stream"
)

// Frame kinds.
const (
	KindKeyframe uint8 = 1
	KindPatch    uint8 = 2
)

// FrameHeaderSize is kind | stream id | seq | length.
const FrameHeaderSize = 1 + 16 + 8 + 4

// MaxPayload bounds a frame payload: a snapshot of one maximal arena plus
// framing is the largest legitimate keyframe.
const MaxPayload = format.MaxArenaSize + format.SnapshotHeaderSize + 4

const initialPayloadBuffer = 64 << 10

// Frame is one replication message.
type Frame struct {
	Kind    uint8
	Stream  uuid.UUID
	Seq     uint64
	Payload []byte
}

// WriteFrame writes f to w as a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	if uint64(len(f.Payload)) > MaxPayload {
		return errors.Wrapf(ErrBadFrame, "payload %d bytes", len(f.Payload))
	}
	sw := stream.NewWriter(FrameHeaderSize + len(f.Payload))
	sw.U8(f.Kind)
	_, _ = sw.Write(f.Stream[:])
	sw.U64(f.Seq)
	sw.U32(uint32(len(f.Payload)))
	_, _ = sw.Write(f.Payload)

	_, err := w.Write(sw.Bytes())
	return err
}

// ReadFrame reads one frame from r. It returns io.EOF only when r is
// exhausted at a frame boundary.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, errors.Wrap(err, "replica: truncated frame header")
		}
		return Frame{}, err
	}

	var f Frame
	sr := stream.NewReader(hdr[:])
	f.Kind = sr.U8()
	sr.ReadInto(f.Stream[:])
	f.Seq = sr.U64()
	n := sr.U32()
	if f.Kind != KindKeyframe && f.Kind != KindPatch {
		return Frame{}, errors.Wrapf(ErrBadFrame, "kind %d", f.Kind)
	}
	if uint64(n) > MaxPayload {
		return Frame{}, errors.Wrapf(ErrBadFrame, "payload %d bytes", n)
	}

	// The length is unverified until the bytes arrive, so the buffer grows
	// with what r delivers instead of trusting n up front.
	var payload bytes.Buffer
	payload.Grow(int(min(n, initialPayloadBuffer)))
	got, err := io.CopyN(&payload, r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, errors.Wrapf(err, "replica: frame %d payload (%d of %d bytes)", f.Seq, got, n)
	}
	f.Payload = payload.Bytes()
	return f, nil
}
