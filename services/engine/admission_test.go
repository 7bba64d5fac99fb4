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
	"errors"
	"testing"
	"time"
)

func TestAdmission_CapacityDefault(t *testing.T) {
	c := NewAdmissionController(0)
	defer c.Close()

	if got := c.Capacity(); got != DefaultAnalysisSlots {
		t.Errorf("Capacity() = %d, want %d", got, DefaultAnalysisSlots)
	}
}

func TestAdmission_TryAcquireExhaustsCapacity(t *testing.T) {
	c := NewAdmissionController(2)
	defer c.Close()

	p1, ok := c.TryAcquire()
	if !ok {
		t.Fatal("first TryAcquire() failed")
	}
	p2, ok := c.TryAcquire()
	if !ok {
		t.Fatal("second TryAcquire() failed")
	}
	if _, ok := c.TryAcquire(); ok {
		t.Error("TryAcquire() succeeded beyond capacity")
	}

	p1.Release()
	p3, ok := c.TryAcquire()
	if !ok {
		t.Error("TryAcquire() failed after a release")
	}

	p2.Release()
	if p3 != nil {
		p3.Release()
	}
}

func TestAdmission_ReleaseIdempotent(t *testing.T) {
	c := NewAdmissionController(1)
	defer c.Close()

	p, ok := c.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed")
	}
	p.Release()
	p.Release()

	// A double release must not mint a second slot.
	q, ok := c.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed after release")
	}
	if _, ok := c.TryAcquire(); ok {
		t.Error("TryAcquire() succeeded beyond capacity after double release")
	}
	q.Release()
}

func TestAdmission_AcquireBlocksUntilRelease(t *testing.T) {
	c := NewAdmissionController(1)
	defer c.Close()

	p, ok := c.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed")
	}

	acquired := make(chan *Permit, 1)
	go func() {
		permit, err := c.Acquire(context.Background())
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
			return
		}
		acquired <- permit
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire() returned while capacity was exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release()
	select {
	case permit := <-acquired:
		permit.Release()
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire() did not return after a release")
	}
}

func TestAdmission_AcquireHonorsCancellation(t *testing.T) {
	c := NewAdmissionController(1)
	defer c.Close()

	p, ok := c.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed")
	}
	defer p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
}

func TestAdmission_CloseWakesWaiters(t *testing.T) {
	c := NewAdmissionController(1)

	p, ok := c.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed")
	}
	defer p.Release()

	errs := make(chan error, 1)
	go func() {
		_, err := c.Acquire(context.Background())
		errs <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrAdmissionClosed) {
			t.Errorf("Acquire() error = %v, want ErrAdmissionClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not woken by Close")
	}

	if _, err := c.Acquire(context.Background()); !errors.Is(err, ErrAdmissionClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrAdmissionClosed", err)
	}
}
