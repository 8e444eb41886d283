package jobs

import (
	"time"

	"maturity-hq/steward/pkg/governance"
)

// Config configures the worker pool.
type Config struct {
	// Workers is the number of concurrent workers.
	Workers int

	// PollInterval is how often an idle worker polls for claimable jobs.
	PollInterval time.Duration

	// RetryBackoff is the base delay before a requeued job becomes
	// claimable again. It doubles with each retry up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// Timeouts is the maximum execution time per job type.
	Timeouts map[governance.JobType]time.Duration

	// ReaperInterval is how often processing jobs are checked for
	// exceeding their execution time. Zero disables the reaper.
	ReaperInterval time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for in-flight jobs.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:      4,
		PollInterval: time.Second,
		RetryBackoff: 5 * time.Second,
		MaxBackoff:   5 * time.Minute,
		Timeouts: map[governance.JobType]time.Duration{
			governance.JobTypeExport:         30 * time.Minute,
			governance.JobTypePurge:          10 * time.Minute,
			governance.JobTypeTTLCleanup:     10 * time.Minute,
			governance.JobTypeAuditRetention: 10 * time.Minute,
		},
		ReaperInterval:  time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Timeouts == nil {
		c.Timeouts = make(map[governance.JobType]time.Duration)
	}
	for t, timeout := range d.Timeouts {
		if c.Timeouts[t] <= 0 {
			c.Timeouts[t] = timeout
		}
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}

// Timeout returns the maximum execution time of jobType.
func (c *Config) Timeout(jobType governance.JobType) time.Duration {
	if t, ok := c.Timeouts[jobType]; ok && t > 0 {
		return t
	}
	return 10 * time.Minute
}

// Backoff returns the delay before attempt retryCount+1.
func (c *Config) Backoff(retryCount int) time.Duration {
	d := c.RetryBackoff
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}
