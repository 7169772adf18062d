package bridge

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vx-labs/logbuffer/logbuffer"
	"github.com/vx-labs/logbuffer/stream"
	"go.uber.org/zap"
)

func TestRecord(t *testing.T) {
	t.Run("should decode an encoded record", func(t *testing.T) {
		record, err := UnmarshalRecord(Record{Topic: "devices/a/temp", Payload: []byte("21.5")}.Marshal())
		require.NoError(t, err)
		require.Equal(t, "devices/a/temp", record.Topic)
		require.Equal(t, []byte("21.5"), record.Payload)
	})
	t.Run("should refuse truncated records", func(t *testing.T) {
		_, err := UnmarshalRecord([]byte{0})
		require.Equal(t, ErrInvalidRecord, errors.Cause(err))
		_, err = UnmarshalRecord([]byte{0, 10, 'a'})
		require.Equal(t, ErrInvalidRecord, errors.Cause(err))
	})
}

func TestWriter(t *testing.T) {
	t.Run("should retry while back pressured", func(t *testing.T) {
		b, err := logbuffer.Allocate(1024)
		require.NoError(t, err)
		attempts := 0
		appender := logbuffer.NewAppender(b, logbuffer.WithPositionLimit(func() int {
			attempts++
			if attempts < 3 {
				return 0
			}
			return b.Capacity()
		}))
		w := NewWriter(appender, stream.NoOpIdle{}, zap.NewNop())
		require.NoError(t, w.Append(context.Background(), Record{Topic: "a", Payload: []byte("b")}))
		require.Equal(t, 3, attempts)

		out := [][]byte{}
		_, err = logbuffer.NewReader(b).Read(func(term []byte, offset, length int, header logbuffer.Header) error {
			out = append(out, term[offset:offset+length])
			return nil
		}, 10)
		require.NoError(t, err)
		require.Equal(t, [][]byte{Record{Topic: "a", Payload: []byte("b")}.Marshal()}, out)
	})
	t.Run("should give up when the context is done", func(t *testing.T) {
		b, err := logbuffer.Allocate(1024)
		require.NoError(t, err)
		appender := logbuffer.NewAppender(b, logbuffer.WithConnectivity(func() bool { return false }))
		w := NewWriter(appender, stream.NoOpIdle{}, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Equal(t, context.Canceled, w.Append(ctx, Record{Topic: "a"}))
	})
	t.Run("should return terminal statuses", func(t *testing.T) {
		b, err := logbuffer.Allocate(1024)
		require.NoError(t, err)
		appender := logbuffer.NewAppender(b)
		appender.Close()
		w := NewWriter(appender, stream.NoOpIdle{}, zap.NewNop())
		require.Equal(t, logbuffer.ErrClosed, w.Append(context.Background(), Record{Topic: "a"}))
	})
}

type memoryPublisher struct {
	published map[string][]byte
	err       error
}

func (m *memoryPublisher) Publish(topic string, payload []byte) error {
	if m.err != nil {
		return m.err
	}
	m.published[topic] = payload
	return nil
}

func TestForwarder(t *testing.T) {
	batch := stream.Batch{Records: [][]byte{
		Record{Topic: "a", Payload: []byte("1")}.Marshal(),
		{0xff},
		Record{Topic: "b", Payload: []byte("2")}.Marshal(),
	}}
	t.Run("should publish valid records under the prefix", func(t *testing.T) {
		publisher := &memoryPublisher{published: map[string][]byte{}}
		require.NoError(t, Forwarder(publisher, "replay/", zap.NewNop())(context.Background(), batch))
		require.Equal(t, map[string][]byte{"replay/a": []byte("1"), "replay/b": []byte("2")}, publisher.published)
	})
	t.Run("should fail when publishing fails", func(t *testing.T) {
		failure := errors.New("broker unavailable")
		publisher := &memoryPublisher{err: failure}
		err := Forwarder(publisher, "", zap.NewNop())(context.Background(), batch)
		require.Equal(t, failure, errors.Cause(err))
	})
	t.Run("should log records", func(t *testing.T) {
		require.NoError(t, LogForwarder(zap.NewNop())(context.Background(), batch))
	})
}

func TestResultLabel(t *testing.T) {
	require.Equal(t, "ok", resultLabel(nil))
	require.Equal(t, "admin_action", resultLabel(errors.Wrap(logbuffer.ErrAdminAction, "term 3")))
	require.Equal(t, "error", resultLabel(errors.New("boom")))
}
