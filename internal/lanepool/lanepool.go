// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lanepool runs the per-lane work of a wave (or per-thread work of a block) on a
// bounded number of goroutines.
package lanepool

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Pool limits the number of lanes running concurrently.
type Pool struct {
	// maxParallelism is the limit of lanes running in parallel. If 0 lanes run inline,
	// if < 0 it is unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a Pool with the given parallelism. Use runtime.NumCPU() (see Default)
// for a reasonable default.
func New(maxParallelism int) *Pool {
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// Default returns a Pool with parallelism runtime.NumCPU().
func Default() *Pool {
	return New(runtime.NumCPU())
}

// MaxParallelism returns the limit of lanes running in parallel.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// lockedIsFull must be called with p.mu acquired.
func (p *Pool) lockedIsFull() bool {
	if p.maxParallelism < 0 {
		return false
	}
	return p.numRunning >= p.maxParallelism
}

// Run calls fn for every lane in [0, numLanes) and waits for all of them.
//
// If any lane fails, the error of the lowest failing lane is returned, annotated with
// the lane number. Lanes that haven't started yet are still run.
func (p *Pool) Run(numLanes int, fn func(lane int) error) error {
	laneErrs := make([]error, numLanes)
	if p.maxParallelism == 0 {
		for lane := range numLanes {
			laneErrs[lane] = fn(lane)
		}
		return firstError(laneErrs)
	}

	var wg sync.WaitGroup
	for lane := range numLanes {
		p.mu.Lock()
		for p.lockedIsFull() {
			p.cond.Wait()
		}
		p.numRunning++
		p.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			laneErrs[lane] = fn(lane)
			p.mu.Lock()
			p.numRunning--
			p.cond.Signal()
			p.mu.Unlock()
		}()
	}
	wg.Wait()
	return firstError(laneErrs)
}

func firstError(laneErrs []error) error {
	for lane, err := range laneErrs {
		if err != nil {
			return errors.WithMessagef(err, "lane %d", lane)
		}
	}
	return nil
}
