package logbuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allocate(t testing.TB, capacity int) *Buffer {
	b, err := Allocate(capacity)
	require.NoError(t, err)
	return b
}

// putFrame writes a frame header at offset. A non positive length leaves
// the frame uncommitted.
func putFrame(b *Buffer, offset, length int, t FrameType) {
	writeHeader(b.term, offset, frameFields{flags: FlagsUnfragmented, frameType: t})
	b.frameLengthOrdered(offset, length)
}

func setTail(b *Buffer, tail int) {
	storeInt32(b.state, tailCounterOffset, int32(tail))
}
