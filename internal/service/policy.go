package service

import (
	"time"

	"github.com/castos/studio/internal/config"
)

const (
	DefaultDetailInterval     = 3 * time.Second
	DefaultCollectionInterval = 10 * time.Second
	DefaultMaxWait            = 15 * time.Minute
)

// Exhaustion decides what a polling loop does once its retry budget is spent
type Exhaustion int

const (
	// ExhaustStop reports the error state and stops polling
	ExhaustStop Exhaustion = iota
	// ExhaustKeepLast keeps the last snapshot and polls again on the next interval
	ExhaustKeepLast
)

func (e Exhaustion) String() string {
	if e == ExhaustKeepLast {
		return "keep-last"
	}
	return "stop"
}

// RetryPolicy governs consecutive fetch failures
type RetryPolicy struct {
	// MaxAttempts is the number of consecutive failed fetches allowed before
	// OnExhaustion applies. Values below 1 behave as 1.
	MaxAttempts  int
	Backoff      time.Duration
	OnExhaustion Exhaustion
}

// PollPolicy configures a polling loop
type PollPolicy struct {
	Interval time.Duration
	MaxWait  time.Duration // zero means no deadline
	MaxPolls int           // zero means no poll limit
	Retry    RetryPolicy
}

// DetailPolicy is used for a focused project view: poll every 3s, fail fast
// on the first transport error, give up after 15 minutes.
func DetailPolicy() PollPolicy {
	return PollPolicy{
		Interval: DefaultDetailInterval,
		MaxWait:  DefaultMaxWait,
		Retry: RetryPolicy{
			MaxAttempts:  1,
			OnExhaustion: ExhaustStop,
		},
	}
}

// CollectionPolicy is used for the dashboard list: refresh every 10s and keep
// trying silently.
func CollectionPolicy() PollPolicy {
	return PollPolicy{
		Interval: DefaultCollectionInterval,
		Retry: RetryPolicy{
			MaxAttempts:  1,
			OnExhaustion: ExhaustKeepLast,
		},
	}
}

// DetailPolicyFromConfig applies tracker settings over DetailPolicy
func DetailPolicyFromConfig(cfg *config.TrackerConfig) PollPolicy {
	p := DetailPolicy()
	if cfg == nil {
		return p
	}
	if cfg.PollInterval > 0 {
		p.Interval = cfg.PollInterval
	}
	if cfg.MaxWait >= 0 {
		p.MaxWait = cfg.MaxWait
	}
	if cfg.MaxPolls > 0 {
		p.MaxPolls = cfg.MaxPolls
	}
	if cfg.RetryAttempts > 0 {
		p.Retry.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBackoff > 0 {
		p.Retry.Backoff = cfg.RetryBackoff
	}
	return p
}

func (p PollPolicy) maxAttempts() int {
	if p.Retry.MaxAttempts < 1 {
		return 1
	}
	return p.Retry.MaxAttempts
}

func (p PollPolicy) retryDelay() time.Duration {
	if p.Retry.Backoff > 0 {
		return p.Retry.Backoff
	}
	return p.Interval
}
