package retry

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Middleware provides retry functionality with exponential backoff
type Middleware struct {
	config Config
}

// New creates a new retry middleware
func New(config Config) *Middleware {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}

	return &Middleware{config: config}
}

// Do executes fn with retry on transient transport errors. Non-transient
// errors are returned immediately; once the attempt budget is exhausted the
// last error is wrapped and surfaced.
func (m *Middleware) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt == m.config.MaxRetries {
			break
		}

		delay := m.calculateDelay(attempt)

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(delay):
		}
	}

	return errors.Wrapf(lastErr, "max retries (%d) exceeded", m.config.MaxRetries)
}

// calculateDelay returns exponential backoff capped at MaxDelay.
func (m *Middleware) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt)))
	if delay > m.config.MaxDelay {
		delay = m.config.MaxDelay
	}
	return delay
}

// IsTransient reports whether an error is a transport-level failure worth
// retrying. Business errors, rate limits, and context cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Anything already classified by the caller stays terminal here.
	if errors.Is(err, errors.ErrRateLimited) || errors.Is(err, errors.ErrExternalService) || errors.Is(err, errors.ErrValidation) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientMessages := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"temporary failure",
		"unexpected eof",
	}
	for _, msg := range transientMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}
