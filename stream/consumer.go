package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vx-labs/logbuffer/logbuffer"
	"github.com/vx-labs/logbuffer/stats"
	"go.uber.org/zap"
)

var ErrMissingConsumerName = errors.New("consumer name is required to checkpoint its offset")

type eofBehaviour int

const (
	// EOFBehaviourPoll will make the consumer wait for new frames once it caught up with the tail
	EOFBehaviourPoll eofBehaviour = 1 << iota
	// EOFBehaviourExit will make the consumer return once it caught up with the tail
	EOFBehaviourExit eofBehaviour = 1 << iota
)

// Batch holds copies of the payloads read in one pass. NextOffset is the
// offset to resume from once the batch is processed.
type Batch struct {
	FirstOffset int
	NextOffset  int
	Records     [][]byte
}

// Processor is a function that will process consumed records
type Processor func(context.Context, Batch) error

// CheckpointStore persists consumer offsets between runs.
type CheckpointStore interface {
	Load(name string) (int, bool, error)
	Commit(name string, offset int) error
}

// ConsumerOpts describes consumer preferences
type ConsumerOpts struct {
	Name            string
	MaxBatchSize    int
	FromOffset      int
	EOFBehaviour    eofBehaviour
	IdleStrategy    IdleStrategy
	Checkpoints     CheckpointStore
	CheckpointEvery time.Duration
	Middleware      []func(Processor, ConsumerOpts) Processor
}

type consumer struct {
	opts ConsumerOpts
}
type consumerOpts func(*ConsumerOpts)

// FromOffset sets where the consumer starts when no checkpoint exists. A
// negative value starts at the current tail.
func FromOffset(o int) consumerOpts {
	return func(c *ConsumerOpts) { c.FromOffset = o }
}
func WithMaxBatchSize(v int) consumerOpts {
	return func(c *ConsumerOpts) { c.MaxBatchSize = v }
}
func WithEOFBehaviour(v eofBehaviour) consumerOpts {
	return func(c *ConsumerOpts) { c.EOFBehaviour = v }
}
func WithName(v string) consumerOpts {
	return func(c *ConsumerOpts) { c.Name = v }
}
func WithIdleStrategy(v IdleStrategy) consumerOpts {
	return func(c *ConsumerOpts) { c.IdleStrategy = v }
}

// WithCheckpoint resumes the consumer from its stored offset and commits
// processed offsets to store at most once per interval, and on exit.
func WithCheckpoint(store CheckpointStore, interval time.Duration) consumerOpts {
	return func(c *ConsumerOpts) {
		c.Checkpoints = store
		c.CheckpointEvery = interval
	}
}
func WithPerformanceLogging(latenessEstimator LatenessEstimator, logger *zap.Logger) consumerOpts {
	return func(c *ConsumerOpts) {
		c.Middleware = append(c.Middleware, func(p Processor, opts ConsumerOpts) Processor {
			if (opts.Name) != "" {
				logger = logger.With(zap.String("consumer_name", opts.Name))
			}
			logger = logger.With(
				zap.Int("consumer_max_batch_size", opts.MaxBatchSize),
			)
			return PerformanceLogger(latenessEstimator, logger, p)
		})
	}
}

type Consumer interface {
	Consume(ctx context.Context, b *logbuffer.Buffer, processor Processor) error
}

func NewConsumer(opts ...consumerOpts) Consumer {
	config := ConsumerOpts{
		MaxBatchSize:    10,
		EOFBehaviour:    EOFBehaviourPoll,
		FromOffset:      0,
		IdleStrategy:    NewBackoffIdle(10, 5, time.Microsecond, 100*time.Millisecond),
		CheckpointEvery: time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return consumer{opts: config}
}

func (c consumer) Consume(ctx context.Context, b *logbuffer.Buffer, processor Processor) error {
	return consume(ctx, b, c.opts, processor)
}

func startOffset(b *logbuffer.Buffer, opts ConsumerOpts) (int, error) {
	if opts.Checkpoints != nil {
		offset, found, err := opts.Checkpoints.Load(opts.Name)
		if err != nil {
			return 0, errors.Wrap(err, "failed to load checkpoint")
		}
		if found {
			return offset, nil
		}
	}
	if opts.FromOffset < 0 {
		return b.Tail(), nil
	}
	return opts.FromOffset, nil
}

// consume reads b until ctx is done, the processor fails, or the reader
// reaches the end of the buffer.
func consume(ctx context.Context, b *logbuffer.Buffer, opts ConsumerOpts, processor Processor) error {
	if opts.Checkpoints != nil && opts.Name == "" {
		return ErrMissingConsumerName
	}
	offset, err := startOffset(b, opts)
	if err != nil {
		return err
	}
	reader := logbuffer.NewReader(b)
	if err := reader.Seek(offset); err != nil {
		return errors.Wrap(err, "failed to seek consumer")
	}
	for _, middleware := range opts.Middleware {
		processor = middleware(processor, opts)
	}

	framesCounter := stats.CounterVec("consumerFrames").WithLabelValues(opts.Name)
	offsetGauge := stats.GaugeVec("consumerOffset").WithLabelValues(opts.Name)
	processed := reader.Offset()
	lastCheckpoint := time.Now()
	checkpoint := func() error {
		if opts.Checkpoints == nil {
			return nil
		}
		lastCheckpoint = time.Now()
		return opts.Checkpoints.Commit(opts.Name, processed)
	}
	defer checkpoint()

	records := [][]byte{}
	handler := func(term []byte, offset, length int, header logbuffer.Header) error {
		record := make([]byte, length)
		copy(record, term[offset:offset+length])
		records = append(records, record)
		return nil
	}
	opts.IdleStrategy.Reset()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		records = [][]byte{}
		first := reader.Offset()
		n, err := reader.Read(handler, opts.MaxBatchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			batch := Batch{FirstOffset: first, NextOffset: reader.Offset(), Records: records}
			start := time.Now()
			if err := processor(ctx, batch); err != nil {
				return err
			}
			stats.Histogram("batchProcessingTime").Observe(stats.MilisecondsElapsed(start))
			framesCounter.Add(float64(n))
		}
		processed = reader.Offset()
		offsetGauge.Set(float64(processed))
		if opts.Checkpoints != nil && time.Since(lastCheckpoint) >= opts.CheckpointEvery {
			if err := checkpoint(); err != nil {
				return errors.Wrap(err, "failed to commit checkpoint")
			}
		}
		if reader.IsComplete() {
			return nil
		}
		progress := reader.Offset() - first
		if progress == 0 && opts.EOFBehaviour == EOFBehaviourExit {
			return nil
		}
		opts.IdleStrategy.Idle(progress)
	}
}
