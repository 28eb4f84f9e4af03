package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/valuation-session-cli/internal/ports"
)

// ErrOpen is the only error the breaker synthesizes itself; everything else
// comes from the wrapped operation unchanged.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}

	return c
}

type Stats struct {
	State          State
	Failures       int
	Successes      int
	TotalCalls     int64
	TotalFailures  int64
	TotalSuccesses int64
	LastFailureAt  time.Time
	LastSuccessAt  time.Time
	OpenedAt       time.Time
}

type Breaker struct {
	cfg   Config
	clock ports.Clock

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	openedAt     time.Time
	halfOpenBusy bool

	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
}

func New(cfg Config, clock ports.Clock) *Breaker {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Breaker{cfg: cfg.withDefaults(), clock: clock}
}

// Execute runs op through the breaker. In the open state op is never
// invoked and ErrOpen is returned immediately. Op's own errors propagate
// unchanged after being recorded.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := b.admit(); err != nil {
		return nil, err
	}

	value, err := op(ctx)
	b.record(err)

	return value, err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:          b.state,
		Failures:       b.failures,
		Successes:      b.successes,
		TotalCalls:     b.totalCalls,
		TotalFailures:  b.totalFailures,
		TotalSuccesses: b.totalSuccesses,
		LastFailureAt:  b.lastFailureAt,
		LastSuccessAt:  b.lastSuccessAt,
		OpenedAt:       b.openedAt,
	}
}

// Reset forces the breaker closed and zeroes the windowed counters. This is
// an operator escape hatch; cumulative totals are kept.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.openedAt = time.Time{}
	b.halfOpenBusy = false
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.halfOpenBusy = true
		return nil
	case StateHalfOpen:
		// One probe at a time while half-open.
		if b.halfOpenBusy {
			return ErrOpen
		}
		b.halfOpenBusy = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.state == StateHalfOpen {
		b.halfOpenBusy = false
	}

	if err != nil {
		b.totalFailures++
		b.lastFailureAt = now

		switch b.state {
		case StateHalfOpen:
			b.trip(now)
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.trip(now)
			}
		}

		return
	}

	b.totalSuccesses++
	b.lastSuccessAt = now

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.openedAt = time.Time{}
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.failures = 0
	b.successes = 0
	b.halfOpenBusy = false
}
