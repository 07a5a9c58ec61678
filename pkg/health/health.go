package health

import (
	"context"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeAppliance CheckType = "appliance"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message"`
	Version   string        `json:"version,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Config contains common configuration for all health checks
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Timeout is the maximum time to wait for a health check to complete
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as unhealthy
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  10 * time.Second,
		Retries:  2,
	}
}

// Status tracks the current health status of an appliance
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int `json:"consecutiveFailures"`

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int `json:"consecutiveSuccesses"`

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time `json:"lastCheck"`

	// LastResult is the result of the last health check
	LastResult Result `json:"lastResult"`

	// Healthy indicates if the appliance is currently considered healthy
	Healthy bool `json:"healthy"`
}

// NewStatus creates a new Status with default values
func NewStatus() *Status {
	return &Status{
		Healthy: true, // Assume healthy until proven otherwise
	}
}

// Update updates the status based on a new health check result.
// It reports whether Healthy changed.
func (s *Status) Update(result Result, config Config) bool {
	was := s.Healthy
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0

		// Mark as healthy after first success
		s.Healthy = true
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0

		// Mark as unhealthy after reaching retry threshold
		if s.ConsecutiveFailures >= config.Retries {
			s.Healthy = false
		}
	}
	return was != s.Healthy
}
