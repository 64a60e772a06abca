// Package census periodically samples profile totals into gauges.
package census

import (
	"context"
	"log/slog"
	"time"

	"github.com/hafedapp/entitlement/internal/profile"
)

// Sink receives sampled counts.
type Sink interface {
	SetProfiles(state string, n int64)
}

// Census polls the profile store on a fixed interval.
type Census struct {
	repo     profile.Repository
	sink     Sink
	interval time.Duration
	now      func() time.Time
}

// New creates a Census.
func New(repo profile.Repository, sink Sink, interval time.Duration) *Census {
	return &Census{
		repo:     repo,
		sink:     sink,
		interval: interval,
		now:      time.Now,
	}
}

// Start samples once immediately, then on every tick until ctx is cancelled.
func (c *Census) Start(ctx context.Context) {
	slog.Info("census started", "interval", c.interval.String())
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("census stopped")
			return
		case <-ticker.C:
			c.Sample(ctx)
		}
	}
}

// Sample reads the current counts and publishes them. Store errors are logged
// and the previous values are kept.
func (c *Census) Sample(ctx context.Context) {
	counts, err := c.repo.Counts(ctx, c.now())
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("census: failed to count profiles", "error", err)
		}
		return
	}

	c.sink.SetProfiles("total", counts.Total)
	c.sink.SetProfiles("shadow", counts.Shadow)
	c.sink.SetProfiles("premium", counts.Premium)
	c.sink.SetProfiles("expired", counts.Expired)
}
