// Package schedule keeps sweeps running unattended: a foreground ticker loop
// for service-style deployments, and schtasks registration for plain
// Windows scheduled-task installs.
package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepFunc runs one full sweep pass.
type SweepFunc func(ctx context.Context) error

type Daemon struct {
	interval time.Duration
	sweep    SweepFunc
	logger   *zap.Logger
}

func NewDaemon(interval time.Duration, sweep SweepFunc, logger *zap.Logger) *Daemon {
	return &Daemon{
		interval: interval,
		sweep:    sweep,
		logger:   logger,
	}
}

// Run sweeps immediately, then once per interval until the context is
// cancelled. Sweeps run sequentially; a pass outlasting the interval delays
// the next tick instead of overlapping it. A failed pass is logged and the
// loop keeps going.
func (d *Daemon) Run(ctx context.Context) error {
	d.runOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return nil
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := d.sweep(ctx); err != nil {
		d.logger.Error("sweep failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return
	}
	d.logger.Info("sweep finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Time("next_run", time.Now().Add(d.interval)),
	)
}
