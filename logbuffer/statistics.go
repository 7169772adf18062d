package logbuffer

import "github.com/pkg/errors"

type Statistics struct {
	Capacity          int
	Tail              int
	FrameCount        int
	DataFrameCount    int
	PaddingFrameCount int
	DataBytes         int
	PaddingBytes      int
	// Uncommitted is set when the walk stopped on a claimed frame not yet committed.
	Uncommitted bool
}

// Frames calls f with the header of every committed frame from offset up to
// the tail, stopping early when f returns false or on an uncommitted frame.
// It returns the offset the walk stopped at.
func Frames(b *Buffer, offset int, f func(Header) bool) int {
	tail := b.Tail()
	for tail-offset >= HeaderLength {
		frameLength := b.frameLengthVolatile(offset)
		if frameLength < HeaderLength || offset+AlignedLength(frameLength) > tail {
			break
		}
		if !f(b.Header(offset)) {
			break
		}
		offset += AlignedLength(frameLength)
	}
	return offset
}

// Verify walks the buffer from its start and checks every frame below the
// tail is well formed.
func Verify(b *Buffer) (Statistics, error) {
	stats := Statistics{
		Capacity: b.Capacity(),
		Tail:     b.Tail(),
	}
	offset := 0
	for offset < stats.Tail {
		if stats.Tail-offset < HeaderLength {
			return stats, errors.Wrapf(ErrCorruptedFrame, "offset %d: %d bytes left before tail", offset, stats.Tail-offset)
		}
		frameLength := b.frameLengthVolatile(offset)
		if frameLength <= 0 {
			stats.Uncommitted = true
			return stats, nil
		}
		alignedLength := AlignedLength(frameLength)
		if frameLength < HeaderLength || offset+alignedLength > stats.Tail {
			return stats, errors.Wrapf(ErrCorruptedFrame, "offset %d: invalid frame length %d", offset, frameLength)
		}
		stats.FrameCount++
		if IsPaddingFrame(b.term, offset) {
			stats.PaddingFrameCount++
			stats.PaddingBytes += alignedLength
		} else {
			stats.DataFrameCount++
			stats.DataBytes += alignedLength
		}
		offset += alignedLength
	}
	return stats, nil
}
