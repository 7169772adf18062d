package logbuffer

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

const (
	TermMinLength = 64 * 1024
	TermMaxLength = 1 << 30

	// StateLength is the size of the side region holding the tail counter.
	// It spans a full cache line so the tail does not share one with frame data.
	StateLength = 64

	tailCounterOffset = 0
	minAllocateLength = 16 * FrameAlignment
)

var nativeLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// Buffer is a term buffer: a power-of-two region of frames plus the state
// region holding the writer's tail. Exactly one Appender may write to it;
// any number of Readers may read it concurrently.
type Buffer struct {
	term  []byte
	state []byte
}

// NewBuffer wraps existing term and state regions, which may live in shared memory.
func NewBuffer(term, state []byte) (*Buffer, error) {
	if err := CheckTermLength(len(term)); err != nil {
		return nil, err
	}
	return newBuffer(term, state)
}

// Allocate creates a heap-backed buffer. Unlike NewBuffer it accepts capacities
// below TermMinLength, down to 512 bytes, as long as they are powers of two.
func Allocate(capacity int) (*Buffer, error) {
	if capacity < minAllocateLength || capacity > TermMaxLength || !isPowerOfTwo(capacity) {
		return nil, errors.Wrapf(ErrInvalidTermLength, "capacity %d", capacity)
	}
	return newBuffer(make([]byte, capacity), make([]byte, StateLength))
}

func newBuffer(term, state []byte) (*Buffer, error) {
	if !nativeLittleEndian {
		return nil, ErrUnsupportedPlatform
	}
	if len(state) < StateLength {
		return nil, errors.Wrapf(ErrInvalidStateLength, "state length %d, want at least %d", len(state), StateLength)
	}
	if uintptr(unsafe.Pointer(&term[0]))%8 != 0 || uintptr(unsafe.Pointer(&state[0]))%8 != 0 {
		return nil, ErrMisalignedRegion
	}
	return &Buffer{term: term, state: state[:StateLength]}, nil
}

// CheckTermLength validates a term capacity for shared buffers.
func CheckTermLength(length int) error {
	if length < TermMinLength {
		return errors.Wrapf(ErrInvalidTermLength, "term length %d less than minimum %d", length, TermMinLength)
	}
	if length > TermMaxLength {
		return errors.Wrapf(ErrInvalidTermLength, "term length %d greater than maximum %d", length, TermMaxLength)
	}
	if !isPowerOfTwo(length) {
		return errors.Wrapf(ErrInvalidTermLength, "term length %d is not a power of two", length)
	}
	return nil
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

func (b *Buffer) Capacity() int {
	return len(b.term)
}

// Bytes returns the term region. Callers must not write to it.
func (b *Buffer) Bytes() []byte {
	return b.term
}

// Tail returns the published tail, loaded with acquire semantics and
// bounded by the capacity.
func (b *Buffer) Tail() int {
	tail := int(loadInt32(b.state, tailCounterOffset))
	if tail > len(b.term) {
		return len(b.term)
	}
	return tail
}

func (b *Buffer) casTail(old, new int) bool {
	return atomic.CompareAndSwapInt32(int32Ptr(b.state, tailCounterOffset), int32(old), int32(new))
}

// CheckOffset fails with ErrInvalidOffset unless offset is frame aligned
// and within [0, tail].
func (b *Buffer) CheckOffset(offset int) error {
	if err := checkOffset(offset, b.Tail()); err != nil {
		return err
	}
	return checkOffsetAlignment(offset)
}

func checkOffset(offset, limit int) error {
	if offset < 0 {
		return errors.Wrapf(ErrInvalidOffset, "offset %d is negative", offset)
	}
	if offset > limit {
		return errors.Wrapf(ErrInvalidOffset, "offset %d is beyond the limit %d", offset, limit)
	}
	return nil
}

func checkOffsetAlignment(offset int) error {
	if offset&(FrameAlignment-1) != 0 {
		return errors.Wrapf(ErrInvalidOffset, "offset %d is not aligned on %d", offset, FrameAlignment)
	}
	return nil
}

// Header returns a view on the header of the frame starting at offset.
func (b *Buffer) Header(offset int) Header {
	return Header{term: b.term, offset: offset}
}

// frameLengthVolatile loads a frame length with acquire semantics. A value
// <= 0 means the frame has been claimed but not committed yet.
func (b *Buffer) frameLengthVolatile(offset int) int {
	return int(loadInt32(b.term, LengthOffset(offset)))
}

func (b *Buffer) frameLengthOrdered(offset, length int) {
	storeInt32(b.term, LengthOffset(offset), int32(length))
}

// Reset zeroes the frames and the tail so the region can be reused for a
// new term. Nothing may read or write the buffer while it is reset.
func (b *Buffer) Reset() {
	for i := range b.term {
		b.term[i] = 0
	}
	storeInt32(b.state, tailCounterOffset, 0)
}

func int32Ptr(region []byte, offset int) *int32 {
	return (*int32)(unsafe.Pointer(&region[offset]))
}

func loadInt32(region []byte, offset int) int32 {
	return atomic.LoadInt32(int32Ptr(region, offset))
}

func storeInt32(region []byte, offset int, v int32) {
	atomic.StoreInt32(int32Ptr(region, offset), v)
}
