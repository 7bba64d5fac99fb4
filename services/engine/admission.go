// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultAnalysisSlots bounds how many analysis jobs may stream
// results at once. Unbounded concurrent engines would exhaust memory
// and CPU; multiple configured engines round-robin through the pool.
const DefaultAnalysisSlots = 2

// =============================================================================
// ADMISSION CONTROLLER
// =============================================================================

// AdmissionController is a counting permit pool gating analysis jobs.
//
// Thread Safety:
//
//	Safe for concurrent use.
type AdmissionController struct {
	sem      *semaphore.Weighted
	capacity int

	closed    chan struct{}
	closeOnce sync.Once
}

// NewAdmissionController creates a pool with the given capacity.
// Non-positive capacity falls back to DefaultAnalysisSlots.
func NewAdmissionController(capacity int) *AdmissionController {
	if capacity <= 0 {
		capacity = DefaultAnalysisSlots
	}
	return &AdmissionController{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		closed:   make(chan struct{}),
	}
}

// Acquire blocks until a permit is free, the context is cancelled, or
// the controller is closed.
//
// Outputs:
//
//	*Permit - Must be released exactly once; Release is idempotent.
//	error - ctx.Err() on cancellation, ErrAdmissionClosed after Close.
func (c *AdmissionController) Acquire(ctx context.Context) (*Permit, error) {
	select {
	case <-c.closed:
		return nil, ErrAdmissionClosed
	default:
	}

	// Waiters must also wake when the controller closes.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := c.sem.Acquire(waitCtx, 1); err != nil {
		select {
		case <-c.closed:
			return nil, ErrAdmissionClosed
		default:
		}
		return nil, ctx.Err()
	}
	return &Permit{sem: c.sem}, nil
}

// TryAcquire grabs a permit without blocking.
func (c *AdmissionController) TryAcquire() (*Permit, bool) {
	select {
	case <-c.closed:
		return nil, false
	default:
	}
	if !c.sem.TryAcquire(1) {
		return nil, false
	}
	return &Permit{sem: c.sem}, true
}

// Capacity returns the configured permit count.
func (c *AdmissionController) Capacity() int {
	return c.capacity
}

// Close makes all pending and future Acquire calls fail fast with
// ErrAdmissionClosed. Permits already granted are not revoked.
func (c *AdmissionController) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Permit is one granted admission slot. Release it when the owning
// job's scope ends, normally via defer.
type Permit struct {
	sem  *semaphore.Weighted
	once sync.Once
}

// Release returns the permit to the pool. Idempotent.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.sem.Release(1)
	})
}
