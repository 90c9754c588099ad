package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlign16(t *testing.T) {
	cases := map[int]int{0: 0, 1: 16, 15: 16, 16: 16, 17: 32, 4095: 4096}
	for in, want := range cases {
		require.Equal(t, want, Align16(in), "Align16(%d)", in)
	}
	require.True(t, IsAligned(64))
	require.False(t, IsAligned(65))
}

func TestSizes(t *testing.T) {
	require.Equal(t, BlockHeaderSize+64, BlockSizeFor(64))
	require.Equal(t, BlockHeaderSize+16, BlockSizeFor(1))
	require.Equal(t, ArenaOverhead+BlockHeaderSize+128, ArenaSizeFor(128))
	require.Equal(t, 0, MinArenaSize%Alignment)
}

func TestNativeRoundTrip(t *testing.T) {
	b := make([]byte, 8)
	PutU32(b, 2, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), ReadU32(b, 2))
}
