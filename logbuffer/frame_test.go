package logbuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	t.Run("should round up to the alignment", func(t *testing.T) {
		require.Equal(t, 0, Align(0, FrameAlignment))
		require.Equal(t, 32, Align(1, FrameAlignment))
		require.Equal(t, 32, Align(32, FrameAlignment))
		require.Equal(t, 64, Align(33, FrameAlignment))
	})
	t.Run("should align frame lengths on the frame alignment", func(t *testing.T) {
		require.Equal(t, 32, AlignedLength(HeaderLength))
		require.Equal(t, 64, AlignedLength(HeaderLength+1))
		require.Equal(t, 96, AlignedLength(HeaderLength+64))
	})
}

func TestHeader(t *testing.T) {
	b := allocate(t, 1024)
	a := NewAppender(b, WithSessionID(7), WithStreamID(1001), WithTermID(-3))
	_, err := a.Offer([]byte("hello"))
	require.NoError(t, err)
	claim, err := a.TryClaim(40)
	require.NoError(t, err)
	claim.SetReservedValue(-42)
	require.NoError(t, claim.Commit())

	t.Run("should expose the fields written by the appender", func(t *testing.T) {
		h := b.Header(0)
		require.Equal(t, 0, h.Offset())
		require.Equal(t, HeaderLength+5, h.FrameLength())
		require.Equal(t, CurrentVersion, h.Version())
		require.Equal(t, FlagsUnfragmented, h.Flags())
		require.Equal(t, FrameTypeData, h.Type())
		require.Equal(t, 0, h.TermOffset())
		require.Equal(t, int32(7), h.SessionID())
		require.Equal(t, int32(1001), h.StreamID())
		require.Equal(t, int32(-3), h.TermID())
		require.Equal(t, int64(0), h.ReservedValue())
	})
	t.Run("should store the term offset and reserved value of later frames", func(t *testing.T) {
		h := b.Header(64)
		require.Equal(t, 64, h.TermOffset())
		require.Equal(t, HeaderLength+40, h.FrameLength())
		require.Equal(t, int64(-42), h.ReservedValue())
	})
	t.Run("should encode fields in little endian", func(t *testing.T) {
		require.Equal(t, byte(HeaderLength+5), b.Bytes()[LengthOffset(0)])
		require.Equal(t, byte(0), b.Bytes()[LengthOffset(0)+3])
		require.Equal(t, byte(FrameTypeData), b.Bytes()[TypeOffset(0)])
		require.Equal(t, byte(0xe9), b.Bytes()[StreamIDOffset(0)])
		require.Equal(t, byte(0x03), b.Bytes()[StreamIDOffset(0)+1])
	})
	t.Run("should detect padding frames", func(t *testing.T) {
		require.False(t, IsPaddingFrame(b.Bytes(), 0))
		putFrame(b, 160, HeaderLength, FrameTypePadding)
		require.True(t, IsPaddingFrame(b.Bytes(), 160))
	})
}

func TestFrameTypeString(t *testing.T) {
	require.Equal(t, "PAD", FrameTypePadding.String())
	require.Equal(t, "DATA", FrameTypeData.String())
	require.Equal(t, "UNKNOWN", FrameType(9).String())
}
