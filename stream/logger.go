package stream

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LatenessEstimator reports the latest published position. *logbuffer.Buffer
// implements it.
type LatenessEstimator interface {
	Tail() int
}

func PerformanceLogger(latenessEstimator LatenessEstimator, logger *zap.Logger, processor Processor) Processor {
	return func(ctx context.Context, batch Batch) error {
		if len(batch.Records) > 0 {
			start := time.Now()
			err := processor(ctx, batch)
			l := logger.With(zap.Int("batch_size", len(batch.Records)),
				zap.Int("batch_first_offset", batch.FirstOffset),
				zap.Duration("batch_processing_time", time.Since(start)),
				zap.Int("processor_lateness_bytes", latenessEstimator.Tail()-batch.NextOffset))

			if err == nil {
				l.Info("stream processed")
			} else {
				l.Error("stream processing failed", zap.Error(err))
			}
			return err
		}
		return nil
	}
}
