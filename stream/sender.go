package stream

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vx-labs/logbuffer/logbuffer"
	"github.com/vx-labs/logbuffer/stats"
)

// Sender copies committed frames, headers included, to a writer in chunks
// of at most mtu bytes. Every chunk is written with a single Write call, so
// a datagram connection receives whole frames only.
type Sender struct {
	lastOutcome   uint64
	name          string
	buffer        *logbuffer.Buffer
	w             io.Writer
	mtu           int
	position      int
	bytesCounter  prometheus.Counter
	positionGauge prometheus.Gauge
}

func NewSender(name string, b *logbuffer.Buffer, w io.Writer, mtu int) *Sender {
	return &Sender{
		name:          name,
		buffer:        b,
		w:             w,
		mtu:           mtu,
		bytesCounter:  stats.CounterVec("senderBytes").WithLabelValues(name),
		positionGauge: stats.GaugeVec("senderPosition").WithLabelValues(name),
	}
}

func (s *Sender) Name() string {
	return s.name
}

// Position is the offset of the next frame to send. It must only be called
// from the goroutine running DoWork.
func (s *Sender) Position() int {
	return s.position
}

// LastOutcome returns the outcome of the latest scan. It is safe for
// concurrent use.
func (s *Sender) LastOutcome() logbuffer.ScanOutcome {
	return logbuffer.UnpackScanOutcome(atomic.LoadUint64(&s.lastOutcome))
}

// Seek moves the sender to a frame aligned offset not beyond the tail.
func (s *Sender) Seek(offset int) error {
	if err := s.buffer.CheckOffset(offset); err != nil {
		return err
	}
	s.position = offset
	return nil
}

func (s *Sender) IsComplete() bool {
	return s.position >= s.buffer.Capacity()
}

// DoWork sends the frames available from the current position and returns
// the number of bytes the position moved by.
func (s *Sender) DoWork(ctx context.Context) (int, error) {
	if s.IsComplete() {
		return 0, nil
	}
	outcome := logbuffer.Scan(s.buffer, s.position, s.mtu)
	atomic.StoreUint64(&s.lastOutcome, outcome.Pack())
	if outcome.Available > 0 {
		chunk := s.buffer.Bytes()[s.position : s.position+outcome.Available]
		if _, err := s.w.Write(chunk); err != nil {
			return 0, errors.Wrapf(err, "failed to send %d bytes at offset %d", len(chunk), s.position)
		}
		s.bytesCounter.Add(float64(outcome.Available))
	}
	s.position += outcome.Consumed()
	s.positionGauge.Set(float64(s.position))
	return outcome.Consumed(), nil
}
