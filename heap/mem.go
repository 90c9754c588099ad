package heap

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/internal/buf"
)

// Resolve returns the payload behind h, or nil when h does not address a
// live block. The slice aliases arena memory and stays valid until the
// block is freed or moved; its capacity is the block's full payload.
//
// Resolve takes no lock and only inspects the block's own header, so it is
// safe while other goroutines allocate and free.
func (a *Allocator) Resolve(h Handle) []byte {
	if !h.IsValid() {
		return nil
	}
	ar := a.Arena(int(h.Arena))
	if ar == nil {
		return nil
	}
	p, ok := ar.View(h.Offset)
	if !ok {
		return nil
	}
	return p
}

// HandleOf maps a payload slice obtained from Resolve back to its Handle.
func (a *Allocator) HandleOf(p []byte) (Handle, bool) {
	for i, ar := range a.arenas() {
		if ar == nil {
			continue
		}
		if off, ok := ar.OffsetOf(p); ok {
			return Handle{Arena: uint32(i), Offset: off}, true
		}
	}
	return InvalidHandle, false
}

// Cap returns the payload capacity of the block behind h, or -1.
func (a *Allocator) Cap(h Handle) int {
	if p := a.Resolve(h); p != nil {
		return len(p)
	}
	return -1
}

// Read copies len(p) bytes starting at off within h's payload into p.
func (a *Allocator) Read(h Handle, off int, p []byte) error {
	src, err := a.span(h, off, len(p))
	if err != nil {
		return err
	}
	copy(p, src)
	return nil
}

// Write copies p into h's payload starting at off.
func (a *Allocator) Write(h Handle, off int, p []byte) error {
	dst, err := a.span(h, off, len(p))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

// MemCopy copies n bytes from src's payload at srcOff to dst's payload at
// dstOff. The blocks may be the same and the ranges may overlap.
func (a *Allocator) MemCopy(dst Handle, dstOff int, src Handle, srcOff int, n int) error {
	from, err := a.span(src, srcOff, n)
	if err != nil {
		return errors.Wrap(err, "source")
	}
	to, err := a.span(dst, dstOff, n)
	if err != nil {
		return errors.Wrap(err, "destination")
	}
	copy(to, from)
	return nil
}

// MemMove moves n bytes within h's payload from srcOff to dstOff.
func (a *Allocator) MemMove(h Handle, dstOff, srcOff, n int) error {
	return a.MemCopy(h, dstOff, h, srcOff, n)
}

// MemClear zeroes n bytes of h's payload starting at off.
func (a *Allocator) MemClear(h Handle, off, n int) error {
	dst, err := a.span(h, off, n)
	if err != nil {
		return err
	}
	clear(dst)
	return nil
}

func (a *Allocator) span(h Handle, off, n int) ([]byte, error) {
	p := a.Resolve(h)
	if p == nil {
		if a.Arena(int(h.Arena)) == nil {
			return nil, errors.Wrapf(ErrBadHandle, "%s", h)
		}
		return nil, errors.Wrapf(ErrNotLive, "%s", h)
	}
	s, ok := buf.Slice(p, off, n)
	if !ok {
		return nil, errors.Wrapf(ErrOutOfRange, "%s [%d:+%d] of %d", h, off, n, len(p))
	}
	return s, nil
}

// Deref returns a *T aliasing the payload behind h, or nil when h is not
// live or the block is smaller than T. T must not contain Go pointers: the
// collector does not scan arena memory.
func Deref[T any](a *Allocator, h Handle) *T {
	var zero T
	p := a.Resolve(h)
	if p == nil || len(p) < int(unsafe.Sizeof(zero)) {
		return nil
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(p)))
}

// SliceOf returns n elements of T aliasing the payload behind h, or nil
// when the block is too small. The pointer restriction of Deref applies.
func SliceOf[T any](a *Allocator, h Handle, n int) []T {
	var zero T
	p := a.Resolve(h)
	size := int(unsafe.Sizeof(zero))
	if p == nil || n < 0 || size == 0 {
		return nil
	}
	if total, ok := buf.MulOverflowSafe(n, size); !ok || total > len(p) {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(p))), n)
}

// NewValue allocates a zeroed block sized for one T and returns its Handle.
func NewValue[T any](a *Allocator) (Handle, error) {
	var zero T
	h, err := a.Alloc(int(unsafe.Sizeof(zero)))
	if err != nil || !h.IsValid() {
		return h, err
	}
	clear(a.Resolve(h))
	return h, nil
}

// NewArray allocates a zeroed block for n elements of T. n == 0 yields the
// invalid Handle.
func NewArray[T any](a *Allocator, n int) (Handle, error) {
	var zero T
	total, ok := buf.MulOverflowSafe(n, int(unsafe.Sizeof(zero)))
	if !ok {
		return InvalidHandle, errors.Wrapf(ErrBadSize, "%d elements of %d bytes", n, unsafe.Sizeof(zero))
	}
	h, err := a.Alloc(total)
	if err != nil || !h.IsValid() {
		return h, err
	}
	clear(a.Resolve(h))
	return h, nil
}
