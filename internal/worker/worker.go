// Package worker bounds concurrent access to expensive resources. The
// render pool keeps the number of simultaneous browser processes in
// check; callers past the limit queue until a slot frees.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Job is a unit of bounded work.
type Job func(ctx context.Context) error

// Pool serializes jobs onto a fixed number of slots. Acquisition
// honors context cancellation, so a caller that gives up while queued
// never occupies a slot.
type Pool struct {
	sem    *semaphore.Weighted
	slots  int
	logger *zap.Logger
}

// NewPool creates a pool with the given number of slots. Sizes below
// one are clamped to one.
func NewPool(slots int, logger *zap.Logger) *Pool {
	if slots < 1 {
		slots = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(slots)),
		slots:  slots,
		logger: logger.Named("pool"),
	}
}

// Slots reports the pool capacity.
func (p *Pool) Slots() int { return p.slots }

// Do runs the job once a slot is free, holding the slot for the job's
// duration.
func (p *Pool) Do(ctx context.Context, job Job) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for worker slot: %w", err)
	}
	defer p.sem.Release(1)
	return job(ctx)
}
