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
	"sync"
	"testing"
	"time"
)

func TestRegistry_GetOrCreate_RequiresContext(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	_, err := r.GetOrCreate(nil, Key{Engine: "stockfish", Session: "tab-1"}, Config{Command: "cat"}) //nolint:staticcheck
	if err == nil {
		t.Error("expected error for nil context")
	}
}

func TestRegistry_Get_NotRunning(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	if proc := r.Get(Key{Engine: "stockfish", Session: "tab-1"}); proc != nil {
		t.Error("Get() = non-nil for never-spawned key")
	}
}

func TestRegistry_GetOrCreate_ReusesLiveProcess(t *testing.T) {
	requireTool(t, "cat")

	r := NewRegistry()
	defer r.StopAll()

	key := Key{Engine: "stockfish", Session: "tab-1"}
	first, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	second, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first != second {
		t.Error("GetOrCreate() spawned a second process for a live key")
	}

	keys := r.Keys()
	if len(keys) != 1 || keys[0] != key {
		t.Errorf("Keys() = %v, want [%v]", keys, key)
	}
}

func TestRegistry_GetOrCreate_ConcurrentSingleSpawn(t *testing.T) {
	requireTool(t, "cat")

	r := NewRegistry()
	defer r.StopAll()

	key := Key{Engine: "stockfish", Session: "tab-1"}

	const workers = 16
	procs := make([]*Process, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			proc, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			procs[i] = proc
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if procs[i] != procs[0] {
			t.Fatalf("concurrent GetOrCreate() returned distinct processes")
		}
	}
}

func TestRegistry_KillRemovesAndAllowsRespawn(t *testing.T) {
	requireTool(t, "cat")

	r := NewRegistry()
	defer r.StopAll()

	key := Key{Engine: "stockfish", Session: "tab-1"}
	first, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if err := r.Kill(key); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if proc := r.Get(key); proc != nil {
		t.Error("Get() = non-nil after Kill")
	}
	if err := r.Kill(key); !errors.Is(err, ErrEngineNotFound) {
		t.Errorf("second Kill() error = %v, want ErrEngineNotFound", err)
	}

	second, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if err != nil {
		t.Fatalf("GetOrCreate() after Kill error = %v", err)
	}
	if second == first {
		t.Error("GetOrCreate() after Kill returned the dead process")
	}
}

func TestRegistry_Stop_NotFound(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	err := r.Stop(context.Background(), Key{Engine: "stockfish", Session: "tab-1"})
	if !errors.Is(err, ErrEngineNotFound) {
		t.Errorf("Stop() error = %v, want ErrEngineNotFound", err)
	}
}

func TestRegistry_StopAll_ClosesRegistry(t *testing.T) {
	requireTool(t, "cat")

	r := NewRegistry()
	key := Key{Engine: "stockfish", Session: "tab-1"}
	proc, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	r.StopAll()
	// Idempotent.
	r.StopAll()

	select {
	case <-proc.Done():
	default:
		t.Error("process not reaped by StopAll")
	}

	_, err = r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("GetOrCreate() after StopAll error = %v, want ErrRegistryClosed", err)
	}
}

func TestRegistry_StopAllRacingSpawnLeavesNoLiveProcess(t *testing.T) {
	requireTool(t, "cat")

	key := Key{Engine: "stockfish", Session: "tab-1"}
	for i := 0; i < 50; i++ {
		r := NewRegistry()
		spawned := make(chan *Process, 1)

		go func() {
			proc, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
			if err != nil {
				spawned <- nil
				return
			}
			spawned <- proc
		}()

		r.StopAll()

		// Whichever side won, no process may outlive StopAll: a spawn
		// that lost the race must be torn down before GetOrCreate
		// returns, and one that won is drained by StopAll itself.
		if proc := <-spawned; proc != nil {
			select {
			case <-proc.Done():
			case <-time.After(5 * time.Second):
				t.Fatalf("iteration %d: live engine process leaked past StopAll", i)
			}
		}
	}
}

func TestRegistry_LogsLifecycle(t *testing.T) {
	requireTool(t, "cat")

	r := NewRegistry()
	defer r.StopAll()

	key := Key{Engine: "stockfish", Session: "tab-1"}
	if _, err := r.Logs(key); !errors.Is(err, ErrEngineNotFound) {
		t.Errorf("Logs() error = %v, want ErrEngineNotFound", err)
	}

	proc, err := r.GetOrCreate(context.Background(), key, Config{Command: "cat"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := proc.SendLine("isready"); err != nil {
		t.Fatalf("SendLine() error = %v", err)
	}

	lines, err := r.Logs(key)
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if len(lines) == 0 {
		t.Error("Logs() = empty, want at least the sent command")
	}

	if err := r.ClearLogs(key); err != nil {
		t.Fatalf("ClearLogs() error = %v", err)
	}
}
