// v0
// internal/circuitbreaker/breaker.go

// Package circuitbreaker guards calls to remote dependencies (Kafka brokers)
// with a Closed/Open/HalfOpen breaker.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// ErrOpen is returned while the breaker fast-fails calls.
var ErrOpen = errors.New("circuit breaker is open; fast-fail")

// Config holds the breaker tunables.
type Config struct {
	MaxFailures      int           // consecutive failures before opening
	ResetTimeout     time.Duration // how long to stay open before probing
	SuccessesToClose int           // successes required in HalfOpen before closing
}

// Validate checks the tunables.
func (c Config) Validate() error {
	if c.MaxFailures < 1 {
		return errors.New("MaxFailures must be >= 1")
	}
	if c.ResetTimeout <= 0 {
		return errors.New("ResetTimeout must be > 0")
	}
	if c.SuccessesToClose < 1 {
		return errors.New("SuccessesToClose must be >= 1")
	}
	return nil
}

// Breaker is safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger
	probe  func(ctx context.Context) error
	now    func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New builds a breaker in the Closed state. probe is optional and runs once
// before the first call after the open window elapses.
func New(name string, cfg Config, probe func(ctx context.Context) error, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With(slog.String("breaker", name)),
		probe:  probe,
		now:    time.Now,
		state:  Closed,
	}
	b.logger.Info("breaker_created",
		slog.Int("maxFailures", cfg.MaxFailures),
		slog.Int("successesToClose", cfg.SuccessesToClose),
		slog.String("resetTimeout", cfg.ResetTimeout.String()),
	)
	return b
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op unless the breaker is open. A failure that trips the
// breaker is returned wrapped in ErrOpen.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	probing, err := b.admit()
	if err != nil {
		return err
	}
	if probing && b.probe != nil {
		if err := b.probe(ctx); err != nil {
			b.logger.Warn("breaker_probe_failed", slog.Any("err", err))
			b.trip()
			return ErrOpen
		}
		b.logger.Info("breaker_probe_ok")
	}

	if err := op(ctx); err != nil {
		if b.onFailure(err) {
			return fmt.Errorf("%w: %v", ErrOpen, err)
		}
		return err
	}
	b.onSuccess()
	return nil
}

// admit decides whether a call may proceed and moves Open to HalfOpen once
// the reset window has passed.
func (b *Breaker) admit() (probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return false, nil
	}
	since := b.now().Sub(b.openedAt)
	if since < b.cfg.ResetTimeout {
		b.logger.Debug("breaker_fast_fail", slog.String("since_open", since.String()))
		return false, ErrOpen
	}
	b.state = HalfOpen
	b.successes = 0
	b.logger.Info("breaker_half_open", slog.Int("previous_failures", b.failures))
	return true, nil
}

func (b *Breaker) trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
}

// onFailure reports whether the failure opened the breaker.
func (b *Breaker) onFailure(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.logger.Warn("operation_failure", slog.Int("failures", b.failures), slog.Any("err", err))
	if b.state == HalfOpen || b.failures >= b.cfg.MaxFailures {
		b.state = Open
		b.openedAt = b.now()
		b.successes = 0
		b.logger.Error("breaker_opened", slog.Int("failures", b.failures))
		return true
	}
	return false
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessesToClose {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.logger.Info("breaker_closed")
		}
	default:
		b.failures = 0
	}
}
