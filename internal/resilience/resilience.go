// Package resilience wraps calls to flaky upstreams with a circuit breaker
// (sony/gobreaker) and exponential backoff retries (avast/retry-go).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTimeout indicates an operation ran past its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF-OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

func mapState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	Name          string
	MaxFailures   uint32        // consecutive failures that open the circuit
	OpenTimeout   time.Duration // how long the circuit stays open before probing
	HalfOpenLimit uint32
	Logger        *slog.Logger
}

// CircuitBreaker implements the circuit breaker pattern using gobreaker.
type CircuitBreaker struct {
	cb  *gobreaker.CircuitBreaker
	log *slog.Logger
}

// NewCircuitBreaker creates a circuit breaker. Cancellation by the caller is not
// counted as an upstream failure.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.HalfOpenLimit == 0 {
		cfg.HalfOpenLimit = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("component", "circuit_breaker", "name", cfg.Name)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenLimit,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "from", mapState(from), "to", mapState(to))
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

// State returns the current breaker state.
func (c *CircuitBreaker) State() CircuitState {
	return mapState(c.cb.State())
}

// Execute runs operation through the breaker. While the circuit is open it fails
// fast with ErrCircuitOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, operation func(context.Context) error) error {
	_, err := c.cb.Execute(func() (any, error) {
		err := operation(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

// RetryConfig holds configuration for retried operations.
type RetryConfig struct {
	Attempts uint
	Delay    time.Duration // initial backoff, doubled per attempt
	MaxDelay time.Duration
	// RetryIf reports whether an error is transient. Nil retries every error.
	RetryIf func(error) bool
	Logger  *slog.Logger
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 3,
		Delay:    time.Second,
		MaxDelay: 30 * time.Second,
	}
}

// Retry calls operation until it succeeds, returns a non-transient error, the
// attempts run out or ctx is done.
func Retry[T any](ctx context.Context, cfg RetryConfig, operation func(context.Context) (T, error)) (T, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = func(error) bool { return true }
	}

	return retry.DoWithData(
		func() (T, error) {
			return operation(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(max(cfg.Attempts, 1)),
		retry.Delay(cfg.Delay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, ErrCircuitOpen) && retryIf(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("Operation failed, retrying", "attempt", n+1, "max_attempts", cfg.Attempts, "error", err)
		}),
	)
}
