// Package scheduler dispatches generation jobs across configured providers,
// bounding per-provider concurrency and walking the fallback chain on
// failure.
package scheduler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// providerPool bounds concurrent in-flight jobs for a single provider to its
// MaxWorkers() value, using a weighted semaphore in place of a hand-rolled
// worker-count/CompareAndSwap loop: the provider's concurrency cap is fixed
// for the life of a run, so there is no worker spin-up/idle-timeout machinery
// to manage, only an acquire/release gate.
type providerPool struct {
	name string
	sem  *semaphore.Weighted
	cap  int64

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func newProviderPool(name string, maxWorkers int) *providerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &providerPool{
		name: name,
		sem:  semaphore.NewWeighted(int64(maxWorkers)),
		cap:  int64(maxWorkers),
	}
}

// Run blocks until a worker slot is free (or ctx is cancelled), then runs fn.
func (p *providerPool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.submitted.Add(1)
	err := fn(ctx)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	return err
}

// Stats reports this provider's pool counters.
func (p *providerPool) Stats() PoolStats {
	return PoolStats{
		Provider:  p.name,
		Capacity:  int(p.cap),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// PoolStats reports one provider pool's lifetime counters.
type PoolStats struct {
	Provider  string
	Capacity  int
	Submitted int64
	Completed int64
	Failed    int64
}
