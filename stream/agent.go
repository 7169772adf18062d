package stream

import (
	"context"

	"go.uber.org/zap"
)

// Agent is a unit of polling work driven by RunAgent.
type Agent interface {
	Name() string
	// DoWork performs one non-blocking pass and returns how much work was done.
	DoWork(ctx context.Context) (int, error)
}

// RunAgent calls agent.DoWork until ctx is done or DoWork fails, handing
// every result to idle.
func RunAgent(ctx context.Context, agent Agent, idle IdleStrategy, logger *zap.Logger) error {
	logger = logger.With(zap.String("agent_name", agent.Name()))
	logger.Debug("agent started")
	defer logger.Debug("agent stopped")
	idle.Reset()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		workCount, err := agent.DoWork(ctx)
		if err != nil {
			logger.Error("agent failed", zap.Error(err))
			return err
		}
		idle.Idle(workCount)
	}
}
