package domain

import (
	"fmt"
	"time"
)

// RecoveryPolicy controls retry, timeout and circuit breaker behavior for
// extraction requests.
type RecoveryPolicy struct {
	MaxRetries              int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	OperationTimeout        time.Duration
	CircuitFailureThreshold uint32
	CircuitResetTimeout     time.Duration
}

// DefaultRecoveryPolicy provides sensible defaults.
var DefaultRecoveryPolicy = RecoveryPolicy{
	MaxRetries:              2,
	BaseDelay:               1 * time.Second,
	MaxDelay:                10 * time.Second,
	OperationTimeout:        30 * time.Second,
	CircuitFailureThreshold: 5,
	CircuitResetTimeout:     60 * time.Second,
}

// Validate enforces that every field is positive and MaxDelay >= BaseDelay.
func (p RecoveryPolicy) Validate() error {
	switch {
	case p.MaxRetries <= 0:
		return fmt.Errorf("recovery: max_retries must be > 0")
	case p.BaseDelay <= 0:
		return fmt.Errorf("recovery: base_delay must be > 0")
	case p.MaxDelay <= 0:
		return fmt.Errorf("recovery: max_delay must be > 0")
	case p.OperationTimeout <= 0:
		return fmt.Errorf("recovery: operation_timeout must be > 0")
	case p.CircuitFailureThreshold == 0:
		return fmt.Errorf("recovery: circuit_failure_threshold must be > 0")
	case p.CircuitResetTimeout <= 0:
		return fmt.Errorf("recovery: circuit_reset_timeout must be > 0")
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("recovery: max_delay (%s) must be >= base_delay (%s)", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// MaxAttempts is the total number of attempts a request may make.
func (p RecoveryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}
