package bridge

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrInvalidRecord = errors.New("invalid record")

var encoding = binary.BigEndian

// Record is an MQTT message stored as one frame payload: the topic length
// on 2 bytes, the topic, then the message payload.
type Record struct {
	Topic   string
	Payload []byte
}

func (r Record) Len() int {
	return 2 + len(r.Topic) + len(r.Payload)
}

func (r Record) MarshalTo(buf []byte) int {
	encoding.PutUint16(buf, uint16(len(r.Topic)))
	n := 2
	n += copy(buf[n:], r.Topic)
	n += copy(buf[n:], r.Payload)
	return n
}

func (r Record) Marshal() []byte {
	buf := make([]byte, r.Len())
	r.MarshalTo(buf)
	return buf
}

// UnmarshalRecord decodes a record. Payload aliases buf.
func UnmarshalRecord(buf []byte) (Record, error) {
	if len(buf) < 2 {
		return Record{}, errors.Wrap(ErrInvalidRecord, "record is too short")
	}
	topicLength := int(encoding.Uint16(buf))
	if len(buf) < 2+topicLength {
		return Record{}, errors.Wrapf(ErrInvalidRecord, "topic length %d overflows record of %d bytes", topicLength, len(buf))
	}
	return Record{
		Topic:   string(buf[2 : 2+topicLength]),
		Payload: buf[2+topicLength:],
	}, nil
}
