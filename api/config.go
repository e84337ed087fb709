package api

import "time"

// RuntimeConfig holds the operational parameters named in spec.md §6, plus
// the domain-stack additions (circuit breaker, snapshotting) this
// implementation carries.
type RuntimeConfig struct {
	// SessionTimeout is the idle window after which a session is expired
	// at the next log-derived time check. Default 5s.
	SessionTimeout time.Duration

	// KeepAliveInterval is the client's keep-alive frequency. Default 1s.
	KeepAliveInterval time.Duration

	// RequestTimeout is the per-RPC deadline. Default 10s.
	RequestTimeout time.Duration

	// BackoffMin/BackoffMax bound the client's registration retry backoff.
	// Defaults 100ms / 5s.
	BackoffMin time.Duration
	BackoffMax time.Duration

	CircuitBreaker CircuitBreakerConfig
	Snapshot       SnapshotConfig
	Log            LoggerConfig

	// MonitoringAddr, if non-empty, is the address the executor's status
	// HTTP endpoint listens on. Empty disables it.
	MonitoringAddr string
}

type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

type SnapshotConfig struct {
	Interval  time.Duration
	Dir       string
	KeepCount int
}

// Environment mirrors pkg/logger.Environment; duplicated here so api has no
// dependency on pkg/logger.
type Environment int

const (
	_ Environment = iota
	Prod
	Dev
	Staging
)

type LoggerConfig struct {
	Env Environment
}

// DefaultRuntimeConfig returns the parameter defaults from spec.md §6.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		SessionTimeout:    5 * time.Second,
		KeepAliveInterval: 1 * time.Second,
		RequestTimeout:    10 * time.Second,
		BackoffMin:        100 * time.Millisecond,
		BackoffMax:        5 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			ResetTimeout:     5 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Interval:  30 * time.Second,
			KeepCount: 2,
		},
		Log: LoggerConfig{Env: Dev},
	}
}

// TestRuntimeConfig returns tight timings suited to tests: short session
// timeouts and backoffs so tests don't wait out the production defaults.
func TestRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		SessionTimeout:    200 * time.Millisecond,
		KeepAliveInterval: 50 * time.Millisecond,
		RequestTimeout:    500 * time.Millisecond,
		BackoffMin:        5 * time.Millisecond,
		BackoffMax:        50 * time.Millisecond,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 2,
			ResetTimeout:     50 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Interval:  time.Second,
			KeepCount: 2,
		},
		Log: LoggerConfig{Env: Dev},
	}
}
