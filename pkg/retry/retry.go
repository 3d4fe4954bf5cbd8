// Package retry runs operations with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Manager decides how often and how long to wait between attempts.
type Manager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewManager(maxRetries int, baseDelay time.Duration) *Manager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Manager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16, // Maximum 16x base delay
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of failed attempts and how long to wait before it.
func (m *Manager) ShouldRetry(attempts int, err error) (bool, time.Duration) {
	if err == nil || attempts > m.maxRetries || IsPermanent(err) {
		return false, 0
	}
	return true, m.Backoff(attempts)
}

// Backoff is base * 2^(attempt-1) with ±25% jitter, capped at 16x base.
func (m *Manager) Backoff(attempt int) time.Duration {
	if attempt <= 0 || m.baseDelay <= 0 {
		return m.baseDelay
	}

	backoff := m.baseDelay * time.Duration(1<<(attempt-1))
	if backoff > m.maxDelay || backoff <= 0 {
		backoff = m.maxDelay
	}

	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	if backoff > m.maxDelay {
		backoff = m.maxDelay
	}
	return backoff
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// retries or ctx is done. The last error is returned.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		retry, delay := m.ShouldRetry(attempt, err)
		if !retry {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
