package retry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/bowerhall/docsage/internal/logger"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// Policy describes how transient upstream failures are retried.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// Default retries overload errors three times with 2s, 4s delays.
func Default() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		Backoff:     Exponential(defaultBaseDelay),
		Retryable:   IsOverloaded,
	}
}

// None performs exactly one attempt.
func None() Policy {
	return Policy{MaxAttempts: 1}
}

func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(1<<attempt)
	}
}

// StatusError is a non-2xx reply from an HTTP model or embedding API.
type StatusError struct {
	API        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.API, e.StatusCode, e.Body)
}

var statusPattern = regexp.MustCompile(`\bstatus:? (\d{3})\b`)

// IsOverloaded reports whether err is a transient overload signal from a
// model provider: a 429, 500, 502, 503 or 529 status, or an explicit
// overload message.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return transientStatus(se.StatusCode)
	}

	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return transientStatus(ae.StatusCode)
	}

	errStr := err.Error()
	if m := statusPattern.FindStringSubmatch(errStr); m != nil {
		code, _ := strconv.Atoi(m[1])
		if transientStatus(code) {
			return true
		}
	}

	return strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED")
}

func transientStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 529:
		return true
	}
	return false
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := range attempts {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}

		logger.Warn("retrying after transient error", "op", op, "attempt", attempt+1, "delay", delay, "error", err)

		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	return err
}
