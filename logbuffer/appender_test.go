package logbuffer

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestAppender(t *testing.T) {
	t.Run("should claim and commit a frame", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		claim, err := a.TryClaim(10)
		require.NoError(t, err)
		require.Equal(t, 0, claim.Offset())
		require.Equal(t, 10, claim.Length())
		require.Equal(t, 10, len(claim.Payload()))
		require.Equal(t, 64, b.Tail())
		require.Equal(t, -(HeaderLength + 10), b.frameLengthVolatile(0))

		copy(claim.Payload(), "0123456789")
		require.NoError(t, claim.Commit())
		require.Equal(t, HeaderLength+10, b.frameLengthVolatile(0))
		require.Equal(t, ErrClaimNotActive, claim.Commit())
		require.Equal(t, ErrClaimNotActive, claim.Abort())
	})
	t.Run("should return the new position on offer", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		position, err := a.Offer([]byte("a"))
		require.NoError(t, err)
		require.Equal(t, 64, position)
		position, err = a.Offer(make([]byte, 40))
		require.NoError(t, err)
		require.Equal(t, 64+96, position)
		require.Equal(t, position, b.Tail())
	})
	t.Run("should turn an aborted claim into padding", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		claim, err := a.TryClaim(10)
		require.NoError(t, err)
		require.NoError(t, claim.Abort())
		_, err = a.Offer([]byte("kept"))
		require.NoError(t, err)

		out := []string{}
		n, err := NewReader(b).Read(collect(&out), 10)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, []string{"kept"}, out)
		require.True(t, IsPaddingFrame(b.Bytes(), 0))
	})
	t.Run("should refuse payloads larger than the max payload length", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		_, err := a.TryClaim(MaxPayloadLength(1024) + 1)
		require.Equal(t, ErrPayloadTooLarge, errors.Cause(err))
		_, err = a.TryClaim(-1)
		require.Equal(t, ErrPayloadTooLarge, errors.Cause(err))
		_, err = a.TryClaim(MaxPayloadLength(1024))
		require.NoError(t, err)
	})
	t.Run("should pad the end of the buffer and ask for an admin action", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		payload := make([]byte, 90)
		for i := 0; i < 8; i++ {
			_, err := a.Offer(payload)
			require.NoError(t, err)
		}
		// 8 frames of 128 bytes: the buffer is exactly full.
		_, err := a.Offer(payload)
		require.Equal(t, ErrAdminAction, err)
		require.True(t, Retryable(err))
		require.Equal(t, 1024, b.Tail())

		b.Reset()
		for i := 0; i < 10; i++ {
			_, err := a.Offer(make([]byte, 60))
			require.NoError(t, err)
		}
		_, err = a.Offer(make([]byte, 60))
		require.Equal(t, ErrAdminAction, err)
		require.True(t, Retryable(err))
		require.Equal(t, 1024, b.Tail())
		require.True(t, IsPaddingFrame(b.Bytes(), 960))
		require.Equal(t, 64, b.Header(960).FrameLength())
		_, err = a.Offer(make([]byte, 60))
		require.Equal(t, ErrAdminAction, err)
	})
	t.Run("should ask for an admin action when frames fill the buffer exactly", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		for i := 0; i < 16; i++ {
			_, err := a.Offer(make([]byte, 32))
			require.NoError(t, err)
		}
		require.Equal(t, 1024, b.Tail())
		_, err := a.TryClaim(1)
		require.Equal(t, ErrAdminAction, err)
		require.True(t, Retryable(err))
		stats, err := Verify(b)
		require.NoError(t, err)
		require.Equal(t, 16, stats.DataFrameCount)
		require.Equal(t, 0, stats.PaddingFrameCount)
	})
	t.Run("should report max position exceeded on the last term ID", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b, WithTermID(math.MaxInt32))
		for i := 0; i < 10; i++ {
			_, err := a.Offer(make([]byte, 60))
			require.NoError(t, err)
		}
		_, err := a.Offer(make([]byte, 60))
		require.Equal(t, ErrMaxPositionExceeded, err)
		require.False(t, Retryable(err))
		require.True(t, IsPaddingFrame(b.Bytes(), 960))
		_, err = a.Offer(make([]byte, 60))
		require.Equal(t, ErrMaxPositionExceeded, err)
	})
	t.Run("should leave committed frames intact when another writer wins the claim", func(t *testing.T) {
		b := allocate(t, 1024)
		other := NewAppender(b)
		raced := false
		a := NewAppender(b, WithPositionLimit(func() int {
			if !raced {
				raced = true
				_, err := other.Offer([]byte("first"))
				require.NoError(t, err)
			}
			return 1024
		}))
		_, err := a.Offer([]byte("second"))
		require.Equal(t, ErrConcurrentClaim, err)
		require.Equal(t, 64, b.Tail())

		out := []string{}
		reader := NewReader(b)
		n, err := reader.Read(collect(&out), 10)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, []string{"first"}, out)
		stats, err := Verify(b)
		require.NoError(t, err)
		require.False(t, stats.Uncommitted)
		require.Equal(t, 1, stats.DataFrameCount)

		_, err = a.Offer([]byte("second"))
		require.NoError(t, err)
		n, err = reader.Read(collect(&out), 10)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, []string{"first", "second"}, out)
	})
	t.Run("should not pad over a frame committed by another writer", func(t *testing.T) {
		b := allocate(t, 1024)
		other := NewAppender(b)
		for i := 0; i < 10; i++ {
			_, err := other.Offer(make([]byte, 60))
			require.NoError(t, err)
		}
		raced := false
		a := NewAppender(b, WithPositionLimit(func() int {
			if !raced {
				raced = true
				_, err := other.Offer([]byte("last"))
				require.NoError(t, err)
			}
			return 2048
		}))
		_, err := a.Offer(make([]byte, 60))
		require.Equal(t, ErrConcurrentClaim, err)
		require.Equal(t, 1024, b.Tail())
		require.False(t, IsPaddingFrame(b.Bytes(), 960))
		require.Equal(t, HeaderLength+4, b.Header(960).FrameLength())
		stats, err := Verify(b)
		require.NoError(t, err)
		require.Equal(t, 11, stats.DataFrameCount)
		require.False(t, stats.Uncommitted)
	})
	t.Run("should report a disconnected subscriber", func(t *testing.T) {
		b := allocate(t, 1024)
		connected := false
		a := NewAppender(b, WithConnectivity(func() bool { return connected }))
		_, err := a.Offer([]byte("a"))
		require.Equal(t, ErrNotConnected, err)
		require.True(t, Retryable(err))
		require.Equal(t, 0, b.Tail())
		connected = true
		_, err = a.Offer([]byte("a"))
		require.NoError(t, err)
	})
	t.Run("should apply back pressure from the position limit", func(t *testing.T) {
		b := allocate(t, 1024)
		limit := 128
		a := NewAppender(b, WithPositionLimit(func() int { return limit }))
		_, err := a.Offer([]byte("a"))
		require.NoError(t, err)
		_, err = a.Offer([]byte("b"))
		require.NoError(t, err)
		_, err = a.Offer([]byte("c"))
		require.Equal(t, ErrBackPressured, err)
		require.Equal(t, 128, b.Tail())
		limit = 1024
		_, err = a.Offer([]byte("c"))
		require.NoError(t, err)
	})
	t.Run("should refuse claims once closed", func(t *testing.T) {
		b := allocate(t, 1024)
		a := NewAppender(b)
		a.Close()
		require.True(t, a.IsClosed())
		_, err := a.TryClaim(1)
		require.Equal(t, ErrClosed, err)
		require.False(t, Retryable(err))
	})
}

func BenchmarkAppender(b *testing.B) {
	buffer := allocate(b, TermMinLength)
	a := NewAppender(buffer)
	payload := make([]byte, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Offer(payload); err != nil {
			buffer.Reset()
		}
	}
}
