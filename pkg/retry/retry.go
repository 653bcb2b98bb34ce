// Package retry provides the bounded exponential backoff policy shared by
// every outbound client (LLM calls, memory store, storefront, knowledge base).
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Policy retries an operation with exponential backoff.
type Policy struct {
	MaxAttempts int
	Multiplier  float64
	MinWait     time.Duration
	MaxWait     time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool

	// Sleep is overridable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger zerolog.Logger
}

// NewPolicy returns the shared outbound-call policy: 3 attempts,
// multiplier 2, waits clamped to [1s, 8s].
func NewPolicy(logger zerolog.Logger) *Policy {
	return &Policy{
		MaxAttempts: 3,
		Multiplier:  2,
		MinWait:     1 * time.Second,
		MaxWait:     8 * time.Second,
		Retryable:   IsTransient,
		Logger:      logger,
	}
}

// Do runs op, retrying on retryable errors until the attempt budget is
// exhausted. The final error is returned unwrapped in the chain.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		p.Logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Retrying after transient error")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", attempts, lastErr)
}

// backoff computes the wait before the next attempt, clamped to
// [MinWait, MaxWait]. Attempt numbering starts at 1.
func (p *Policy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := time.Duration(float64(time.Second) * mult * float64(int(1)<<(attempt-1)))
	if p.MinWait > 0 && d < p.MinWait {
		d = p.MinWait
	}
	if p.MaxWait > 0 && d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

func waitCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// IsTransient reports whether an error looks like a transient network or
// upstream failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()

	// Connection-level failures
	for _, s := range []string{"ECONNRESET", "ETIMEDOUT", "ECONNREFUSED", "connection reset", "connection refused", "broken pipe", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	return false
}
