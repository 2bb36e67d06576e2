package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned without calling the dependency while the breaker is open.
var ErrOpen = gobreaker.ErrOpenState

type Config struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// New builds a breaker that opens after MaxFailures consecutive errors and lets a
// single trial call through once ResetTimeout has passed.
func New(name string, cfg Config) *gobreaker.CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	maxFailures := uint32(cfg.MaxFailures)

	log.Info().
		Str("breaker", name).
		Int("max_failures", cfg.MaxFailures).
		Dur("reset_timeout", cfg.ResetTimeout).
		Msg("Circuit breaker created")

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// caller cancellation says nothing about the dependency
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ev := log.Info()
			if to == gobreaker.StateOpen {
				ev = log.Error()
			}
			ev.Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}

// Execute runs op through cb. A half-open breaker that is already probing answers
// ErrOpen like an open one.
func Execute(ctx context.Context, cb *gobreaker.CircuitBreaker, op func(ctx context.Context) error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}
