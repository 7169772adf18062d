package logbuffer

import (
	"encoding/binary"
)

// Frame header layout (32 bytes, little-endian):
//   0  int32  frame length, header included. Written last on commit.
//   4  uint8  version
//   5  uint8  flags
//   6  uint16 frame type
//   8  int32  term offset
//   12 int32  session id
//   16 int32  stream id
//   20 int32  term id
//   24 int64  reserved value
const (
	HeaderLength   = 32
	FrameAlignment = 32

	lengthFieldOffset        = 0
	versionFieldOffset       = 4
	flagsFieldOffset         = 5
	typeFieldOffset          = 6
	termOffsetFieldOffset    = 8
	sessionIDFieldOffset     = 12
	streamIDFieldOffset      = 16
	termIDFieldOffset        = 20
	reservedValueFieldOffset = 24
)

const (
	CurrentVersion uint8 = 0

	FlagBegin         uint8 = 0x80
	FlagEnd           uint8 = 0x40
	FlagsUnfragmented       = FlagBegin | FlagEnd
)

type FrameType uint16

const (
	FrameTypePadding FrameType = 0x00
	FrameTypeData    FrameType = 0x01
)

func (t FrameType) String() string {
	switch t {
	case FrameTypePadding:
		return "PAD"
	case FrameTypeData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

var encoding = binary.LittleEndian

func LengthOffset(frameOffset int) int        { return frameOffset + lengthFieldOffset }
func VersionOffset(frameOffset int) int       { return frameOffset + versionFieldOffset }
func FlagsOffset(frameOffset int) int         { return frameOffset + flagsFieldOffset }
func TypeOffset(frameOffset int) int          { return frameOffset + typeFieldOffset }
func TermOffsetOffset(frameOffset int) int    { return frameOffset + termOffsetFieldOffset }
func SessionIDOffset(frameOffset int) int     { return frameOffset + sessionIDFieldOffset }
func StreamIDOffset(frameOffset int) int      { return frameOffset + streamIDFieldOffset }
func TermIDOffset(frameOffset int) int        { return frameOffset + termIDFieldOffset }
func ReservedValueOffset(frameOffset int) int { return frameOffset + reservedValueFieldOffset }

// Align rounds value up to the next multiple of alignment, which must be a power of two.
func Align(value, alignment int) int {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignedLength is the footprint of a frame in the buffer.
func AlignedLength(frameLength int) int {
	return Align(frameLength, FrameAlignment)
}

func frameType(term []byte, frameOffset int) FrameType {
	o := TypeOffset(frameOffset)
	return FrameType(encoding.Uint16(term[o : o+2]))
}

// IsPaddingFrame reports whether the frame starting at frameOffset is a padding sentinel.
func IsPaddingFrame(term []byte, frameOffset int) bool {
	return frameType(term, frameOffset) == FrameTypePadding
}

// Header gives access to the header fields of one frame without copying it.
// It is only valid for the duration of the handler call it was passed to.
type Header struct {
	term   []byte
	offset int
}

func (h Header) Offset() int { return h.offset }

// FrameLength is read with acquire semantics.
func (h Header) FrameLength() int {
	return int(loadInt32(h.term, LengthOffset(h.offset)))
}
func (h Header) Version() uint8   { return h.term[VersionOffset(h.offset)] }
func (h Header) Flags() uint8     { return h.term[FlagsOffset(h.offset)] }
func (h Header) Type() FrameType  { return frameType(h.term, h.offset) }
func (h Header) TermOffset() int  { return int(h.int32At(TermOffsetOffset(h.offset))) }
func (h Header) SessionID() int32 { return h.int32At(SessionIDOffset(h.offset)) }
func (h Header) StreamID() int32  { return h.int32At(StreamIDOffset(h.offset)) }
func (h Header) TermID() int32    { return h.int32At(TermIDOffset(h.offset)) }
func (h Header) ReservedValue() int64 {
	o := ReservedValueOffset(h.offset)
	return int64(encoding.Uint64(h.term[o : o+8]))
}

func (h Header) int32At(o int) int32 {
	return int32(encoding.Uint32(h.term[o : o+4]))
}

// frameFields are the header fields the appender writes before publishing a frame.
type frameFields struct {
	flags     uint8
	frameType FrameType
	sessionID int32
	streamID  int32
	termID    int32
}

func writeHeader(term []byte, frameOffset int, f frameFields) {
	term[VersionOffset(frameOffset)] = CurrentVersion
	term[FlagsOffset(frameOffset)] = f.flags
	o := TypeOffset(frameOffset)
	encoding.PutUint16(term[o:o+2], uint16(f.frameType))
	o = TermOffsetOffset(frameOffset)
	encoding.PutUint32(term[o:o+4], uint32(frameOffset))
	o = SessionIDOffset(frameOffset)
	encoding.PutUint32(term[o:o+4], uint32(f.sessionID))
	o = StreamIDOffset(frameOffset)
	encoding.PutUint32(term[o:o+4], uint32(f.streamID))
	o = TermIDOffset(frameOffset)
	encoding.PutUint32(term[o:o+4], uint32(f.termID))
	o = ReservedValueOffset(frameOffset)
	encoding.PutUint64(term[o:o+8], 0)
}
