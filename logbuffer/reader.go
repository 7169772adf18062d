package logbuffer

import (
	"github.com/pkg/errors"
)

// FragmentHandler receives the payload of one data frame as a range of term.
// term must not be retained once the handler returns.
type FragmentHandler func(term []byte, offset, length int, header Header) error

type CursorState int

const (
	BeforeStart CursorState = iota
	InProgress
	Complete
)

func (s CursorState) String() string {
	switch s {
	case BeforeStart:
		return "before_start"
	case InProgress:
		return "in_progress"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Reader is a cursor over a Buffer. It is not safe for concurrent use: every
// consumer needs its own Reader, but many Readers can share one Buffer.
type Reader struct {
	buffer *Buffer
	offset int
}

func NewReader(b *Buffer) *Reader {
	return &Reader{buffer: b}
}

func (r *Reader) Offset() int {
	return r.offset
}

// Seek moves the cursor to offset, which must be frame aligned and not beyond
// the published tail. The cursor is left untouched on error.
func (r *Reader) Seek(offset int) error {
	if err := r.buffer.CheckOffset(offset); err != nil {
		return err
	}
	r.offset = offset
	return nil
}

// Read delivers up to framesLimit data frames to handler and returns how many
// were delivered. Padding frames are stepped over without being delivered.
// The cursor moves past a frame even when its handler fails or panics, so a
// frame is never delivered twice; a handler error ends the pass.
func (r *Reader) Read(handler FragmentHandler, framesLimit int) (int, error) {
	framesRead := 0
	tail := r.buffer.Tail()

	for tail > r.offset && framesRead < framesLimit {
		delivered, committed, err := r.readFrame(handler)
		if !committed {
			break
		}
		if delivered {
			framesRead++
		}
		if err != nil {
			return framesRead, err
		}
	}
	return framesRead, nil
}

func (r *Reader) readFrame(handler FragmentHandler) (delivered bool, committed bool, err error) {
	offset := r.offset
	frameLength := r.buffer.frameLengthVolatile(offset)
	if frameLength <= 0 {
		return false, false, nil
	}
	defer func() {
		r.offset = offset + AlignedLength(frameLength)
	}()
	if IsPaddingFrame(r.buffer.term, offset) {
		return false, true, nil
	}
	err = handler(r.buffer.term, offset+HeaderLength, frameLength-HeaderLength, r.buffer.Header(offset))
	if err != nil {
		err = errors.Wrapf(err, "failed to handle frame at offset %d", offset)
	}
	return true, true, err
}

// IsComplete reports whether the cursor reached the end of the buffer.
func (r *Reader) IsComplete() bool {
	return r.offset >= r.buffer.Capacity()
}

func (r *Reader) State() CursorState {
	switch {
	case r.offset == 0:
		return BeforeStart
	case r.IsComplete():
		return Complete
	default:
		return InProgress
	}
}
