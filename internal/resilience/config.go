package resilience

import (
	"time"

	"github.com/cafe-compass/compass-cli/internal/config"
)

// FromRetryConfig converts the retry config section. Zero values keep the
// defaults.
func FromRetryConfig(rc config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		cfg.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction > 0 {
		cfg.JitterFraction = rc.JitterFraction
	}
	return cfg
}

// FromCollectConfig builds the per-service breaker config from the collect
// section. Only transient errors trip a breaker.
func FromCollectConfig(cc config.CollectConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if cc.BreakerThreshold > 0 {
		cfg.FailureThreshold = cc.BreakerThreshold
	}
	if cc.BreakerResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(cc.BreakerResetSecs) * time.Second
	}
	cfg.ShouldTrip = IsTransient
	return cfg
}
