package heap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/internal/format"
)

func small() *Options { return &Options{MinArenaSize: 1024} }

func newSmall(t *testing.T) *Allocator {
	t.Helper()
	a, err := Initialize(1024, 0, small())
	require.NoError(t, err)
	require.Equal(t, 1, a.ArenaCount())
	return a
}

func TestNew_Empty(t *testing.T) {
	a := New(nil)
	assert.Equal(t, 0, a.ArenaCount())
	assert.Equal(t, uint16(0), a.Version())
	assert.Nil(t, a.Arena(0))
}

func TestInitialize(t *testing.T) {
	a, err := Initialize(512<<10, 64<<20, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ArenaCount())
	assert.Equal(t, 512<<10, a.Arena(0).Size())
	assert.Equal(t, int64(64<<20), a.MaxSize())
	assert.Equal(t, uint16(1), a.Version())

	_, err = Initialize(-1, 0, nil)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestAlloc_ZeroSize(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(0)
	require.NoError(t, err)
	assert.False(t, h.IsValid())
	assert.Nil(t, a.Resolve(h))
	require.NoError(t, a.Free(h))
}

func TestAlloc_BadSize(t *testing.T) {
	a := newSmall(t)
	_, err := a.Alloc(-1)
	require.ErrorIs(t, err, ErrBadSize)
	_, err = a.Alloc(MaxAllocSize + 1)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestAlloc_NewArenaWhenFull(t *testing.T) {
	a := newSmall(t)
	v := a.Version()

	h1, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h1.Arena)
	assert.Equal(t, v, a.Version(), "allocating inside an arena is not structural")

	h2, err := a.Alloc(2000)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h2.Arena)
	assert.Equal(t, format.ArenaSizeFor(2000), a.Arena(1).Size())
	assert.Equal(t, v+1, a.Version())
}

func TestHandles_StableAcrossGrowth(t *testing.T) {
	a := newSmall(t)

	var hs []Handle
	for i := range 50 {
		h, err := a.Alloc(100)
		require.NoError(t, err)
		require.NoError(t, a.Write(h, 0, []byte(fmt.Sprintf("block-%02d", i))))
		hs = append(hs, h)
	}
	require.Greater(t, a.ArenaCount(), 1)

	for i, h := range hs {
		got := make([]byte, 8)
		require.NoError(t, a.Read(h, 0, got))
		assert.Equal(t, fmt.Sprintf("block-%02d", i), string(got))
	}
}

func TestFree_Errors(t *testing.T) {
	a := newSmall(t)
	h1, err := a.Alloc(16)
	require.NoError(t, err)
	_, err = a.Alloc(16)
	require.NoError(t, err)

	v := a.Version()
	require.NoError(t, a.Free(h1))
	assert.Equal(t, v, a.Version(), "free inside a live arena is not structural")
	require.ErrorIs(t, a.Free(h1), ErrNotLive)
	require.ErrorIs(t, a.Free(Handle{Arena: 7, Offset: 48}), ErrBadHandle)
	require.ErrorIs(t, a.Free(Handle{Arena: 0, Offset: 50}), ErrNotLive)
}

func TestFree_DestroysEmptyArenaAndReusesSlot(t *testing.T) {
	a := newSmall(t)
	h1, err := a.Alloc(16)
	require.NoError(t, err)
	h2, err := a.Alloc(2000)
	require.NoError(t, err)
	require.Equal(t, uint32(1), h2.Arena)

	v := a.Version()
	require.NoError(t, a.Free(h2))
	assert.Nil(t, a.Arena(1))
	assert.Equal(t, 2, a.ArenaCount(), "slot stays in the table")
	assert.Equal(t, v+1, a.Version())

	require.NoError(t, a.Free(h1))
	assert.Nil(t, a.Arena(0))
	assert.Nil(t, a.Resolve(h1))
	require.ErrorIs(t, a.Free(h1), ErrBadHandle)

	h3, err := a.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h3.Arena, "first empty slot is reused")
	assert.Equal(t, 1024, a.Arena(0).Size())
}

func TestRealloc_ShrinkKeepsHandle(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(128)
	require.NoError(t, err)
	v := a.Version()
	got, err := a.Realloc(h, 8)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, 128, a.Cap(h))
	assert.Equal(t, v, a.Version())
}

func TestRealloc_GrowsInPlace(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, a.Write(h, 0, []byte("keep")))

	v := a.Version()
	got, err := a.Realloc(h, 256)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.GreaterOrEqual(t, a.Cap(h), 256)
	assert.Equal(t, v, a.Version(), "in-place growth is not structural")
	assert.Equal(t, []byte("keep"), a.Resolve(h)[:4])
}

func TestRealloc_MovesWhenNeighbourUsed(t *testing.T) {
	a := newSmall(t)

	h, err := a.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, a.Write(h, 0, []byte("0123456789abcdef")))

	// Fill the rest of the first arena exactly so the neighbour is used.
	rest := a.Arena(0).Size() - format.ArenaOverhead - format.BlockSizeFor(16) - format.BlockHeaderSize
	filler, err := a.Alloc(rest)
	require.NoError(t, err)
	require.Equal(t, uint32(0), filler.Arena)
	require.Equal(t, 0, a.Arena(0).Stats().FreeBlocks)

	v := a.Version()
	moved, err := a.Realloc(h, 4096)
	require.NoError(t, err)
	require.NotEqual(t, h, moved)
	assert.Equal(t, v+1, a.Version(), "only the new arena bumps the version")
	assert.Equal(t, uint32(1), moved.Arena)
	assert.Equal(t, []byte("0123456789abcdef"), a.Resolve(moved)[:16])

	old := a.Arena(0).BlockAt(h.Offset - format.BlockHeaderSize)
	assert.True(t, old.Free, "old block is released")
	assert.Nil(t, a.Resolve(h))
}

func TestRealloc_InvalidHandleAllocates(t *testing.T) {
	a := newSmall(t)
	h, err := a.Realloc(InvalidHandle, 32)
	require.NoError(t, err)
	assert.True(t, h.IsValid())
}

func TestReserve(t *testing.T) {
	a := newSmall(t)
	require.NoError(t, a.Reserve(10))
	assert.Equal(t, 1, a.ArenaCount())

	require.NoError(t, a.Reserve(4000))
	require.Equal(t, 2, a.ArenaCount())
	assert.True(t, a.Arena(1).HasFreeBlock(4000))

	h, err := a.Alloc(4000)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.Arena)
	assert.Equal(t, 2, a.ArenaCount())
}

func TestMaxSize_Advisory(t *testing.T) {
	a, err := Initialize(1024, 2048, small())
	require.NoError(t, err)
	_, err = a.Alloc(2000)
	require.NoError(t, err)
	assert.Equal(t, 2, a.ArenaCount())
}

func TestMaxSize_Strict(t *testing.T) {
	a, err := Initialize(1024, 2048, &Options{MinArenaSize: 1024, StrictMaxSize: true})
	require.NoError(t, err)
	_, err = a.Alloc(2000)
	require.ErrorIs(t, err, ErrMaxSize)
	assert.Equal(t, 1, a.ArenaCount())

	_, err = a.Alloc(100)
	require.NoError(t, err, "allocations that fit stay legal")
}

func TestDispose(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(32)
	require.NoError(t, err)
	v := a.Version()

	a.Dispose()
	assert.Equal(t, 0, a.ArenaCount())
	assert.Nil(t, a.Resolve(h))
	assert.NotEqual(t, v, a.Version())

	_, err = a.Alloc(32)
	require.NoError(t, err)
}

func TestMem_ReadWrite(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(32)
	require.NoError(t, err)

	require.NoError(t, a.Write(h, 4, []byte("abcd")))
	got := make([]byte, 4)
	require.NoError(t, a.Read(h, 4, got))
	assert.Equal(t, "abcd", string(got))

	require.ErrorIs(t, a.Write(h, 30, []byte("abcd")), ErrOutOfRange)
	require.ErrorIs(t, a.Read(h, -1, got), ErrOutOfRange)
	require.ErrorIs(t, a.Write(Handle{Arena: 3, Offset: 48}, 0, got), ErrBadHandle)
	require.ErrorIs(t, a.Write(Handle{Arena: 0, Offset: 64}, 0, got), ErrNotLive)
}

func TestMem_CopyMoveClear(t *testing.T) {
	a := newSmall(t)
	src, err := a.Alloc(16)
	require.NoError(t, err)
	dst, err := a.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, a.Write(src, 0, []byte("0123456789abcdef")))

	require.NoError(t, a.MemCopy(dst, 2, src, 0, 4))
	assert.Equal(t, []byte("\x00\x000123"), a.Resolve(dst)[:6])

	// Overlapping move within one block.
	require.NoError(t, a.MemMove(src, 2, 0, 8))
	assert.Equal(t, []byte("0101234567ab"), a.Resolve(src)[:12])

	require.NoError(t, a.MemClear(src, 0, 4))
	assert.Equal(t, []byte("\x00\x00\x00\x00234567ab"), a.Resolve(src)[:12])

	require.ErrorIs(t, a.MemCopy(dst, 10, src, 0, 10), ErrOutOfRange)
	require.ErrorIs(t, a.MemClear(src, 0, 17), ErrOutOfRange)
}

func TestHandleOf(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(40)
	require.NoError(t, err)

	got, ok := a.HandleOf(a.Resolve(h))
	require.True(t, ok)
	assert.Equal(t, h, got)

	_, ok = a.HandleOf(make([]byte, 8))
	assert.False(t, ok)
}

func TestHandle_Uint64(t *testing.T) {
	h := Handle{Arena: 3, Offset: 0x40}
	assert.Equal(t, h, HandleFromUint64(h.Uint64()))
	assert.Equal(t, "heap.Handle(3:0x40)", h.String())
	assert.Equal(t, "heap.Handle(invalid)", InvalidHandle.String())
}

type vec3 struct{ X, Y, Z float64 }

func TestDerefAndSliceOf(t *testing.T) {
	a := newSmall(t)
	h, err := NewValue[vec3](a)
	require.NoError(t, err)

	p := Deref[vec3](a, h)
	require.NotNil(t, p)
	assert.Equal(t, vec3{}, *p)
	p.Y = 2.5
	assert.Equal(t, 2.5, Deref[vec3](a, h).Y)

	arr, err := NewArray[uint32](a, 8)
	require.NoError(t, err)
	s := SliceOf[uint32](a, arr, 8)
	require.Len(t, s, 8)
	s[7] = 42
	assert.Equal(t, uint32(42), SliceOf[uint32](a, arr, 8)[7])
	assert.Nil(t, SliceOf[uint32](a, arr, 9))

	tiny, err := a.Alloc(8)
	require.NoError(t, err)
	assert.NotNil(t, Deref[uint64](a, tiny), "8 bytes round up to a 16-byte payload")
	assert.Nil(t, Deref[[4]vec3](a, tiny))
}

func TestCachedPtr(t *testing.T) {
	a := newSmall(t)
	h, err := NewValue[vec3](a)
	require.NoError(t, err)

	c := Cache[vec3](a, h)
	require.True(t, c.Valid(a))
	c.Get(a).X = 7
	assert.Equal(t, h, c.Handle())

	// A new arena is a structural change.
	_, err = a.Alloc(4000)
	require.NoError(t, err)
	assert.False(t, c.Valid(a))
	assert.Equal(t, 7.0, c.Get(a).X)
	assert.True(t, c.Valid(a))

	// Restoring a snapshot taken at the same version still invalidates.
	snap := a.Serialize()
	require.NoError(t, a.Restore(snap))
	assert.False(t, c.Valid(a))
	assert.Equal(t, 7.0, c.Get(a).X)

	var missing CachedPtr[vec3]
	missing.Reset(a, InvalidHandle)
	assert.Nil(t, missing.Get(a))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	a := newSmall(t)
	h1, err := a.Alloc(100)
	require.NoError(t, err)
	require.NoError(t, a.Write(h1, 0, []byte("first")))
	h2, err := a.Alloc(3000)
	require.NoError(t, err)
	require.NoError(t, a.Write(h2, 0, []byte("second")))
	h3, err := a.Alloc(5000)
	require.NoError(t, err)
	require.NoError(t, a.Free(h2)) // leaves slot 1 empty

	snap := a.Serialize()
	require.Len(t, snap, a.SerializedLen())
	require.Equal(t, a.Version(), binary.NativeEndian.Uint16(snap))

	b, err := Deserialize(snap, small())
	require.NoError(t, err)
	assert.Equal(t, a.ArenaCount(), b.ArenaCount())
	assert.Nil(t, b.Arena(1))
	assert.Equal(t, a.Version(), b.Version())
	assert.Equal(t, snap, b.Serialize())

	got := make([]byte, 5)
	require.NoError(t, b.Read(h1, 0, got))
	assert.Equal(t, "first", string(got))
	assert.Equal(t, a.Cap(h3), b.Cap(h3))

	// The copy owns its memory.
	snap[format.SnapshotHeaderSize+4+format.FirstBlockOffset+format.BlockHeaderSize] = 'X'
	require.NoError(t, b.Read(h1, 0, got))
	assert.Equal(t, "first", string(got))
}

func TestSnapshot_EmptyAllocator(t *testing.T) {
	a := New(nil)
	snap := a.Serialize()
	require.Len(t, snap, format.SnapshotHeaderSize)

	b, err := Deserialize(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, b.ArenaCount())
}

func TestRestore_ReusesEqualSizedArenas(t *testing.T) {
	a := newSmall(t)
	h, err := a.Alloc(64)
	require.NoError(t, err)
	snap := a.Serialize()
	before := a.Arena(0)

	require.NoError(t, a.Write(h, 0, []byte("changed")))
	require.NoError(t, a.Restore(snap))
	assert.Same(t, before, a.Arena(0))
	assert.Equal(t, make([]byte, 7), a.Resolve(h)[:7])
}

func TestRestore_CorruptLeavesAllocatorUnchanged(t *testing.T) {
	a := newSmall(t)
	_, err := a.Alloc(64)
	require.NoError(t, err)
	good := a.Serialize()

	negative := bytes.Clone(good)
	format.PutU32(negative, format.SnapshotHeaderSize, math.MaxUint32) // -1 as i32

	badHeader := bytes.Clone(good)
	format.PutU32(badHeader, format.SnapshotHeaderSize+4+format.ArenaSizeOffset, 2048)

	tests := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"short header", good[:10]},
		{"truncated arena", good[:len(good)-1]},
		{"trailing bytes", append(bytes.Clone(good), 0)},
		{"negative length", negative},
		{"header size mismatch", badHeader},
		{"huge count", func() []byte {
			b := bytes.Clone(good[:format.SnapshotHeaderSize])
			format.PutU32(b, 10, 1<<30)
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := a.Version()
			err := a.Restore(tt.b)
			require.ErrorIs(t, err, ErrCorruptSnapshot)
			assert.Equal(t, good, a.Serialize())
			assert.Equal(t, v, a.Version())

			_, err = Deserialize(tt.b, nil)
			require.Error(t, err)
		})
	}
}

func TestCopyFrom(t *testing.T) {
	src := newSmall(t)
	h1, err := src.Alloc(100)
	require.NoError(t, err)
	require.NoError(t, src.Write(h1, 0, []byte("copied")))
	_, err = src.Alloc(3000)
	require.NoError(t, err)

	dst, err := Initialize(1024, 0, small())
	require.NoError(t, err)
	kept := dst.Arena(0)
	v := dst.Version()

	require.NoError(t, dst.CopyFrom(src))
	assert.Same(t, kept, dst.Arena(0), "equal-sized arenas are overwritten in place")
	assert.Equal(t, src.ArenaCount(), dst.ArenaCount())
	assert.Equal(t, src.Serialize()[2:], dst.Serialize()[2:])
	assert.NotEqual(t, v, dst.Version())

	require.NoError(t, dst.Write(h1, 0, []byte("mutate")))
	got := make([]byte, 6)
	require.NoError(t, src.Read(h1, 0, got))
	assert.Equal(t, "copied", string(got))
}

func TestCopyFrom_ParallelComplete(t *testing.T) {
	src := New(small())
	var hs []Handle
	for i := range 8 {
		h, err := src.Alloc(2000 + i*16)
		require.NoError(t, err)
		require.NoError(t, src.Write(h, 0, []byte{byte(i)}))
		hs = append(hs, h)
	}
	require.NoError(t, src.Free(hs[3]))

	dst := New(small())
	n := dst.CopyFromPrepare(src)
	require.Equal(t, src.ArenaCount(), n)

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() { errs[i] = dst.CopyFromComplete(src, i) })
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, src.Serialize()[2:], dst.Serialize()[2:])
	for i, h := range hs {
		if i == 3 {
			assert.Nil(t, dst.Resolve(h))
			continue
		}
		assert.Equal(t, byte(i), dst.Resolve(h)[0])
	}
}

func TestCopyFromComplete_GeometryMismatch(t *testing.T) {
	src := newSmall(t)
	dst := New(small())
	require.ErrorIs(t, dst.CopyFromComplete(src, 0), ErrGeometry)
}

func TestStats(t *testing.T) {
	a := newSmall(t)
	_, err := a.Alloc(100)
	require.NoError(t, err)
	_, err = a.Alloc(3000)
	require.NoError(t, err)

	st := a.Stats()
	assert.Equal(t, 2, st.Slots)
	assert.Equal(t, 2, st.Arenas)
	assert.Equal(t, 2, st.LiveBlocks)
	assert.Equal(t, 1024+format.ArenaSizeFor(3000), st.Capacity)
	assert.Equal(t, 112+3008, st.LivePayload)
	assert.Equal(t, st.PerArena[0].LargestFree, st.LargestFree)
}

func TestConcurrentAllocFree(t *testing.T) {
	a, err := Initialize(64<<10, 0, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := range 200 {
				size := 16 + (g*31+i*7)%500
				h, err := a.Alloc(size)
				if !assert.NoError(t, err) {
					return
				}
				tag := []byte{byte(g), byte(i)}
				assert.NoError(t, a.Write(h, 0, tag))
				got := make([]byte, 2)
				assert.NoError(t, a.Read(h, 0, got))
				assert.Equal(t, tag, got)
				assert.NoError(t, a.Free(h))
			}
		})
	}
	wg.Wait()

	st := a.Stats()
	assert.Equal(t, 0, st.LiveBlocks)
	assert.Equal(t, 0, st.Arenas, "every arena emptied and was destroyed")
}

func BenchmarkAllocFree(b *testing.B) {
	a, err := Initialize(1<<20, 0, nil)
	require.NoError(b, err)
	keep, err := a.Alloc(16) // keeps arena 0 alive
	require.NoError(b, err)
	_ = keep

	for b.Loop() {
		h, _ := a.Alloc(64)
		_ = a.Free(h)
	}
}
