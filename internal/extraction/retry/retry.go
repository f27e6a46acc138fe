// Package retry holds the side-effect-free backoff calculation and error
// classification used between extraction attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/ocrguard/internal/core/domain"
)

// Delay returns the wait before the attempt after `attempt` (1-based):
//
//	d = min(base × 2^(attempt−1), max)
//	delay = d + uniform[0, d/4]
//
// Attempts below 1 are treated as 1.
func Delay(attempt int, policy domain.RecoveryPolicy) time.Duration {
	return delay(attempt, policy, rand.Int64N)
}

func delay(attempt int, policy domain.RecoveryPolicy, randN func(int64) int64) time.Duration {
	d := calculateBackoff(attempt, policy)
	if quarter := int64(d) / 4; quarter > 0 {
		d += time.Duration(randN(quarter + 1))
	}
	return d
}

func calculateBackoff(attempt int, policy domain.RecoveryPolicy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(backoff)
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	// Caller gave up; retrying cannot help.
	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindServiceUnavailable:
		return ActionFatal
	default:
		// Initialization, image load, extraction and timeout failures.
		return ActionRetry
	}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return err != nil && ClassifyError(err) == ActionRetry
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
