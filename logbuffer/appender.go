package logbuffer

import (
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
)

// MaxPayloadLength is the largest payload a single frame may carry in a
// buffer of the given capacity. Larger messages must be split upstream.
func MaxPayloadLength(capacity int) int {
	return capacity/8 - HeaderLength
}

type appenderOpts struct {
	sessionID     int32
	streamID      int32
	termID        int32
	connected     func() bool
	positionLimit func() int
}

type AppenderOption func(*appenderOpts)

func WithSessionID(v int32) AppenderOption {
	return func(o *appenderOpts) { o.sessionID = v }
}
func WithStreamID(v int32) AppenderOption {
	return func(o *appenderOpts) { o.streamID = v }
}
func WithTermID(v int32) AppenderOption {
	return func(o *appenderOpts) { o.termID = v }
}

// WithConnectivity makes claims fail with ErrNotConnected while f returns false.
func WithConnectivity(f func() bool) AppenderOption {
	return func(o *appenderOpts) { o.connected = f }
}

// WithPositionLimit makes claims ending beyond f() fail with ErrBackPressured.
// It is usually derived from the slowest reader position.
func WithPositionLimit(f func() int) AppenderOption {
	return func(o *appenderOpts) { o.positionLimit = f }
}

// Appender is the single writer of a Buffer. It is not safe for concurrent use.
type Appender struct {
	buffer *Buffer
	opts   appenderOpts
	closed int32
}

func NewAppender(b *Buffer, opts ...AppenderOption) *Appender {
	config := appenderOpts{}
	for _, opt := range opts {
		opt(&config)
	}
	return &Appender{buffer: b, opts: config}
}

func (a *Appender) Buffer() *Buffer {
	return a.buffer
}

// Close makes every following claim fail with ErrClosed.
func (a *Appender) Close() {
	atomic.StoreInt32(&a.closed, 1)
}

func (a *Appender) IsClosed() bool {
	return atomic.LoadInt32(&a.closed) == 1
}

func (a *Appender) fields(t FrameType) frameFields {
	return frameFields{
		flags:     FlagsUnfragmented,
		frameType: t,
		sessionID: a.opts.sessionID,
		streamID:  a.opts.streamID,
		termID:    a.opts.termID,
	}
}

// TryClaim reserves a frame for a payload of length bytes. The frame stays
// invisible to readers until the claim is committed or aborted.
//
// When the frame does not fit in the remaining space, the remainder is
// published as a padding frame and ErrAdminAction is returned: the caller
// must move to a fresh buffer and claim again. A full buffer reports
// ErrAdminAction too, unless the term ID cannot be rotated any further.
func (a *Appender) TryClaim(length int) (BufferClaim, error) {
	if a.IsClosed() {
		return BufferClaim{}, ErrClosed
	}
	capacity := a.buffer.Capacity()
	if maxLength := MaxPayloadLength(capacity); length < 0 || length > maxLength {
		return BufferClaim{}, errors.Wrapf(ErrPayloadTooLarge, "payload length %d, max is %d", length, maxLength)
	}
	if a.opts.connected != nil && !a.opts.connected() {
		return BufferClaim{}, ErrNotConnected
	}
	tail := a.buffer.Tail()
	if tail >= capacity {
		return BufferClaim{}, a.termFull()
	}
	frameLength := length + HeaderLength
	alignedLength := AlignedLength(frameLength)
	if a.opts.positionLimit != nil && tail+alignedLength > a.opts.positionLimit() {
		return BufferClaim{}, ErrBackPressured
	}
	if tail+alignedLength > capacity {
		if err := a.pad(tail, capacity-tail); err != nil {
			return BufferClaim{}, err
		}
		return BufferClaim{}, a.termFull()
	}

	// The frame is only touched once the tail CAS made it ours.
	if !a.buffer.casTail(tail, tail+alignedLength) {
		return BufferClaim{}, ErrConcurrentClaim
	}
	writeHeader(a.buffer.term, tail, a.fields(FrameTypeData))
	a.buffer.frameLengthOrdered(tail, -frameLength)
	return BufferClaim{buffer: a.buffer, offset: tail, frameLength: frameLength, active: true}, nil
}

func (a *Appender) pad(offset, length int) error {
	if !a.buffer.casTail(offset, offset+length) {
		return ErrConcurrentClaim
	}
	writeHeader(a.buffer.term, offset, a.fields(FrameTypePadding))
	a.buffer.frameLengthOrdered(offset, length)
	return nil
}

// termFull is the status of a claim against a full buffer. The last term ID
// has no successor to rotate to.
func (a *Appender) termFull() error {
	if a.opts.termID == math.MaxInt32 {
		return ErrMaxPositionExceeded
	}
	return ErrAdminAction
}

// Offer claims a frame, copies payload into it and commits it. It returns
// the tail position after the frame.
func (a *Appender) Offer(payload []byte) (int, error) {
	claim, err := a.TryClaim(len(payload))
	if err != nil {
		return 0, err
	}
	copy(claim.Payload(), payload)
	if err := claim.Commit(); err != nil {
		return 0, err
	}
	return claim.Offset() + AlignedLength(claim.frameLength), nil
}

// BufferClaim is a reserved frame waiting to be committed.
type BufferClaim struct {
	buffer      *Buffer
	offset      int
	frameLength int
	active      bool
}

func (c *BufferClaim) Buffer() *Buffer { return c.buffer }

// Offset is the offset of the frame header in the buffer.
func (c *BufferClaim) Offset() int { return c.offset }

// Length is the payload length.
func (c *BufferClaim) Length() int { return c.frameLength - HeaderLength }

// Payload is the writable payload region of the claimed frame.
func (c *BufferClaim) Payload() []byte {
	return c.buffer.term[c.offset+HeaderLength : c.offset+c.frameLength]
}

func (c *BufferClaim) SetReservedValue(v int64) {
	o := ReservedValueOffset(c.offset)
	encoding.PutUint64(c.buffer.term[o:o+8], uint64(v))
}

// Commit publishes the frame to readers.
func (c *BufferClaim) Commit() error {
	if !c.active {
		return ErrClaimNotActive
	}
	c.active = false
	c.buffer.frameLengthOrdered(c.offset, c.frameLength)
	return nil
}

// Abort publishes the claimed space as padding so readers step over it.
func (c *BufferClaim) Abort() error {
	if !c.active {
		return ErrClaimNotActive
	}
	c.active = false
	o := TypeOffset(c.offset)
	encoding.PutUint16(c.buffer.term[o:o+2], uint16(FrameTypePadding))
	c.buffer.frameLengthOrdered(c.offset, c.frameLength)
	return nil
}
