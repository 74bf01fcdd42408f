// Package tasks runs fixed-interval background jobs. A failing or panicking
// iteration is logged and the loop keeps going; only context cancellation
// stops a job.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Func is one job iteration.
type Func func(ctx context.Context) error

// Runner owns a set of background loops and waits for them on shutdown.
type Runner struct {
	Log *slog.Logger
	wg  sync.WaitGroup
}

func NewRunner(log *slog.Logger) *Runner {
	return &Runner{Log: log}
}

// Every starts fn on a fixed interval until ctx is cancelled. The first run
// happens after one interval, not immediately.
func (r *Runner) Every(ctx context.Context, name string, interval time.Duration, fn Func) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.Log.Info("background task started", "task", name, "interval", interval)
		for {
			select {
			case <-ctx.Done():
				r.Log.Info("background task stopped", "task", name)
				return
			case <-ticker.C:
				if err := r.runOnce(ctx, name, fn); err != nil {
					r.Log.Error("background task iteration failed", "task", name, "error", err)
				}
			}
		}
	}()
}

// runOnce contains the panic barrier, so one bad iteration cannot take the
// whole loop (or process) down.
func (r *Runner) runOnce(ctx context.Context, name string, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %s panicked: %v", name, rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every loop has observed cancellation and returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
