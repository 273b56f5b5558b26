// Package worker runs the background side of quakewatch: a poller that
// refreshes the earthquake board on an interval, and a Pub/Sub consumer for
// on-demand feed jobs.
package worker

import (
	"time"
)

// PollerConfig holds configuration for the Poller.
type PollerConfig struct {
	// Interval is the time between refreshes.
	// Default: 5 minutes
	Interval time.Duration

	// DeliveryTimeout bounds the wait for each refresh to be delivered.
	// Default: 1 minute
	DeliveryTimeout time.Duration

	// RefreshOnStart polls once before the first tick.
	// Default: true
	RefreshOnStart bool
}

// DefaultPollerConfig returns the default poller configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:        5 * time.Minute,
		DeliveryTimeout: time.Minute,
		RefreshOnStart:  true,
	}
}

func (c PollerConfig) withDefaults() PollerConfig {
	d := DefaultPollerConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = d.DeliveryTimeout
	}
	return c
}
