package stream

import (
	"runtime"
	"time"

	"github.com/pkg/errors"
)

var ErrUnknownIdleStrategy = errors.New("unknown idle strategy")

// IdleStrategy decides what a polling loop does after a unit of work.
// Idle is called with the amount of work done by the last pass; strategies
// only back off when it is zero.
type IdleStrategy interface {
	Idle(workCount int)
	Reset()
}

// NoOpIdle spins.
type NoOpIdle struct{}

func (NoOpIdle) Idle(int) {}
func (NoOpIdle) Reset()   {}

// YieldingIdle yields the processor when there is nothing to do.
type YieldingIdle struct{}

func (YieldingIdle) Idle(workCount int) {
	if workCount > 0 {
		return
	}
	runtime.Gosched()
}
func (YieldingIdle) Reset() {}

// SleepingIdle sleeps for a fixed duration when there is nothing to do.
type SleepingIdle struct {
	Duration time.Duration
}

func (s SleepingIdle) Idle(workCount int) {
	if workCount > 0 {
		return
	}
	time.Sleep(s.Duration)
}
func (SleepingIdle) Reset() {}

const (
	backoffStateNotIdle = iota
	backoffStateSpinning
	backoffStateYielding
	backoffStateParking
)

// BackoffIdle spins, then yields, then sleeps with an exponentially growing
// duration bounded by MaxPark. Work resets it to spinning.
type BackoffIdle struct {
	MaxSpins  int
	MaxYields int
	MinPark   time.Duration
	MaxPark   time.Duration

	state  int
	spins  int
	yields int
	park   time.Duration
}

func NewBackoffIdle(maxSpins, maxYields int, minPark, maxPark time.Duration) *BackoffIdle {
	return &BackoffIdle{
		MaxSpins:  maxSpins,
		MaxYields: maxYields,
		MinPark:   minPark,
		MaxPark:   maxPark,
	}
}

func (b *BackoffIdle) Idle(workCount int) {
	if workCount > 0 {
		b.Reset()
		return
	}
	switch b.state {
	case backoffStateNotIdle:
		b.state = backoffStateSpinning
		b.spins++
	case backoffStateSpinning:
		b.spins++
		if b.spins > b.MaxSpins {
			b.state = backoffStateYielding
			b.yields = 0
		}
	case backoffStateYielding:
		b.yields++
		if b.yields > b.MaxYields {
			b.state = backoffStateParking
			b.park = b.MinPark
		} else {
			runtime.Gosched()
		}
	case backoffStateParking:
		time.Sleep(b.park)
		b.park *= 2
		if b.park > b.MaxPark {
			b.park = b.MaxPark
		}
	}
}

func (b *BackoffIdle) Reset() {
	b.state = backoffStateNotIdle
	b.spins = 0
	b.yields = 0
	b.park = b.MinPark
}

// ParseIdleStrategy builds a strategy from its name: noop, yielding,
// sleeping or backoff.
func ParseIdleStrategy(name string) (IdleStrategy, error) {
	switch name {
	case "noop":
		return NoOpIdle{}, nil
	case "yielding":
		return YieldingIdle{}, nil
	case "sleeping":
		return SleepingIdle{Duration: time.Millisecond}, nil
	case "backoff", "":
		return NewBackoffIdle(10, 5, time.Microsecond, 100*time.Millisecond), nil
	default:
		return nil, errors.Wrap(ErrUnknownIdleStrategy, name)
	}
}
