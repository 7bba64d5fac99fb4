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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Key identifies one engine session: the same engine binary may run
// several independent analysis contexts (one per GUI tab).
type Key struct {
	Engine  string
	Session string
}

func (k Key) String() string {
	return k.Engine + "/" + k.Session
}

// quitTimeout bounds the graceful-stop wait before a kill.
const quitTimeout = 2 * time.Second

// =============================================================================
// REGISTRY
// =============================================================================

// Registry manages engine processes keyed by (engine, session).
//
// Description:
//
//	Provides lazy spawning of engine processes with at most one live
//	process per key. Creation for a given key is serialized with a
//	per-key lock so unrelated engine sessions never block each other.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Registry struct {
	procs   map[Key]*Process
	procsMu sync.RWMutex
	startMu sync.Map // Key -> *sync.Mutex for spawn serialization

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		procs:   make(map[Key]*Process),
		stopped: make(chan struct{}),
	}
}

// GetOrCreate returns the live process for key, spawning it if needed.
//
// Description:
//
//	Returns an existing process if one is alive, otherwise spawns a
//	new one. Uses double-check locking so concurrent callers for the
//	same key never spawn two processes; the second caller waits for
//	and reuses the first's handle.
//
// Inputs:
//
//	ctx - Context for cancellation while waiting on the per-key lock
//	key - The (engine, session) pair
//	cfg - Spawn configuration, used only when a spawn happens
//
// Outputs:
//
//	*Process - The live process
//	error - ErrRegistryClosed after StopAll, ErrSpawnFailed on spawn
//	errors, ctx.Err() on cancellation
//
// Thread Safety:
//
//	Safe for concurrent use.
func (r *Registry) GetOrCreate(ctx context.Context, key Key, cfg Config) (*Process, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-r.stopped:
		return nil, ErrRegistryClosed
	default:
	}

	// Fast path: already running.
	r.procsMu.RLock()
	proc, ok := r.procs[key]
	r.procsMu.RUnlock()
	if ok && proc.Alive() {
		return proc, nil
	}

	// Per-key spawn lock.
	lockI, _ := r.startMu.LoadOrStore(key, &sync.Mutex{})
	lock := lockI.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	// Double-check after acquiring the lock.
	r.procsMu.RLock()
	proc, ok = r.procs[key]
	r.procsMu.RUnlock()
	if ok && proc.Alive() {
		return proc, nil
	}

	// Drop a dead handle before respawning.
	if ok {
		r.procsMu.Lock()
		delete(r.procs, key)
		r.procsMu.Unlock()
	}

	select {
	case <-r.stopped:
		return nil, ErrRegistryClosed
	default:
	}

	proc, err := startProcess(cfg)
	if err != nil {
		recordSpawn(ctx, cfg.Command, false)
		return nil, err
	}

	// The shutdown re-check and the insert share one critical section:
	// StopAll drains the map under procsMu, so a close that lands after
	// this check cannot finish draining before the insert below, and a
	// close that landed earlier is observed here and the fresh process
	// is torn down instead of leaking past shutdown.
	r.procsMu.Lock()
	select {
	case <-r.stopped:
		r.procsMu.Unlock()
		proc.Terminate()
		return nil, ErrRegistryClosed
	default:
	}
	r.procs[key] = proc
	r.procsMu.Unlock()

	slog.Info("Engine session registered",
		slog.String("engine", key.Engine),
		slog.String("session", key.Session),
	)
	return proc, nil
}

// Get returns the live process for key, or nil.
func (r *Registry) Get(key Key) *Process {
	r.procsMu.RLock()
	defer r.procsMu.RUnlock()

	proc, ok := r.procs[key]
	if ok && proc.Alive() {
		return proc
	}
	return nil
}

// Stop gracefully stops the engine for key.
//
// Description:
//
//	Removes the handle, sends the protocol-level quit command, and
//	waits up to quitTimeout for the process to exit before killing it.
//	No-op if no live handle exists.
func (r *Registry) Stop(ctx context.Context, key Key) error {
	proc := r.remove(key)
	if proc == nil {
		return ErrEngineNotFound
	}

	if err := proc.SendLine("quit"); err == nil {
		select {
		case <-proc.Done():
			return nil
		case <-time.After(quitTimeout):
			slog.Warn("Engine unresponsive to quit, killing",
				slog.String("engine", key.Engine),
				slog.String("session", key.Session),
			)
		case <-ctx.Done():
		}
	}

	proc.Terminate()
	return nil
}

// Kill forcibly terminates the engine for key.
func (r *Registry) Kill(key Key) error {
	proc := r.remove(key)
	if proc == nil {
		return ErrEngineNotFound
	}
	proc.Terminate()
	return nil
}

// StopAll terminates every live handle and closes the registry.
//
// Description:
//
//	Used at shutdown. Safe to call concurrently with in-flight
//	analysis: those jobs observe ErrProcessTerminated rather than
//	completing. Subsequent GetOrCreate calls fail fast. Idempotent.
func (r *Registry) StopAll() {
	r.stopOnce.Do(func() {
		close(r.stopped)
	})

	r.procsMu.Lock()
	procs := make([]*Process, 0, len(r.procs))
	for _, proc := range r.procs {
		procs = append(procs, proc)
	}
	r.procs = make(map[Key]*Process)
	r.procsMu.Unlock()

	for _, proc := range procs {
		proc.Terminate()
	}

	if len(procs) > 0 {
		slog.Info("All engine sessions terminated", slog.Int("count", len(procs)))
	}
}

// Logs returns the diagnostic ring for key's live handle.
func (r *Registry) Logs(key Key) ([]string, error) {
	proc := r.Get(key)
	if proc == nil {
		return nil, ErrEngineNotFound
	}
	return proc.Logs(), nil
}

// ClearLogs discards the diagnostic ring for key's live handle.
func (r *Registry) ClearLogs(key Key) error {
	proc := r.Get(key)
	if proc == nil {
		return ErrEngineNotFound
	}
	proc.ClearLogs()
	return nil
}

// Keys returns the keys of all live handles.
func (r *Registry) Keys() []Key {
	r.procsMu.RLock()
	defer r.procsMu.RUnlock()

	keys := make([]Key, 0, len(r.procs))
	for key, proc := range r.procs {
		if proc.Alive() {
			keys = append(keys, key)
		}
	}
	return keys
}

// reap removes key's entry if it still maps to proc. Called by
// analysis jobs that observe a dead process mid-request.
func (r *Registry) reap(key Key, proc *Process) {
	r.procsMu.Lock()
	if current, ok := r.procs[key]; ok && current == proc {
		delete(r.procs, key)
	}
	r.procsMu.Unlock()
}

// remove detaches and returns key's handle, or nil.
func (r *Registry) remove(key Key) *Process {
	r.procsMu.Lock()
	defer r.procsMu.Unlock()

	proc, ok := r.procs[key]
	if !ok {
		return nil
	}
	delete(r.procs, key)
	return proc
}
