// Package poller periodically reconciles the project list with the backend
// to catch status changes the push channel missed.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/lthibault/jitterbug/v2"
)

// Reconciler is the operation run on every tick.
type Reconciler interface {
	Reconcile(ctx context.Context) bool
}

// Poller runs a Reconciler on a jittered interval.
type Poller struct {
	target   Reconciler
	logger   *slog.Logger
	interval time.Duration
	stdev    time.Duration
}

// New creates a poller. A non-positive interval disables polling.
func New(target Reconciler, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		target:   target,
		interval: interval,
		stdev:    interval / 10,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		p.logger.Debug("Reconcile polling disabled")
		return nil
	}

	ticker := jitterbug.New(p.interval, &jitterbug.Norm{Stdev: p.stdev, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !p.target.Reconcile(ctx) {
			p.logger.Debug("Reconcile pass failed", "next_in", p.interval)
		}
	}
}
