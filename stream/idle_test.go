package stream

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseIdleStrategy(t *testing.T) {
	t.Run("should parse known strategies", func(t *testing.T) {
		for name, expected := range map[string]IdleStrategy{
			"noop":     NoOpIdle{},
			"yielding": YieldingIdle{},
			"sleeping": SleepingIdle{Duration: time.Millisecond},
		} {
			idle, err := ParseIdleStrategy(name)
			require.NoError(t, err)
			require.Equal(t, expected, idle)
		}
		idle, err := ParseIdleStrategy("backoff")
		require.NoError(t, err)
		require.IsType(t, &BackoffIdle{}, idle)
	})
	t.Run("should refuse unknown strategies", func(t *testing.T) {
		_, err := ParseIdleStrategy("busy")
		require.Equal(t, ErrUnknownIdleStrategy, errors.Cause(err))
	})
}

func TestBackoffIdle(t *testing.T) {
	idle := NewBackoffIdle(2, 2, time.Microsecond, 4*time.Microsecond)
	t.Run("should spin, yield, then park", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			idle.Idle(0)
		}
		require.Equal(t, backoffStateYielding, idle.state)
		for i := 0; i < 3; i++ {
			idle.Idle(0)
		}
		require.Equal(t, backoffStateParking, idle.state)
		for i := 0; i < 4; i++ {
			idle.Idle(0)
		}
		require.Equal(t, 4*time.Microsecond, idle.park)
	})
	t.Run("should reset on work", func(t *testing.T) {
		idle.Idle(1)
		require.Equal(t, backoffStateNotIdle, idle.state)
		require.Equal(t, 0, idle.spins)
	})
}

type countingAgent struct {
	calls int
	limit int
}

func (c *countingAgent) Name() string { return "counting" }
func (c *countingAgent) DoWork(ctx context.Context) (int, error) {
	c.calls++
	if c.calls == c.limit {
		return 0, errors.New("limit reached")
	}
	return 1, nil
}

func TestRunAgent(t *testing.T) {
	t.Run("should stop on failure", func(t *testing.T) {
		agent := &countingAgent{limit: 5}
		err := RunAgent(context.Background(), agent, NoOpIdle{}, zap.NewNop())
		require.Error(t, err)
		require.Equal(t, 5, agent.calls)
	})
	t.Run("should stop when the context is done", func(t *testing.T) {
		agent := &countingAgent{limit: -1}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, RunAgent(ctx, agent, NoOpIdle{}, zap.NewNop()))
		require.Equal(t, 0, agent.calls)
	})
}
