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

import "errors"

// Sentinel errors for engine process management.
var (
	// ErrSpawnFailed indicates the engine process could not be started.
	// Spawn failures are reported once and never retried automatically.
	ErrSpawnFailed = errors.New("engine spawn failed")

	// ErrProcessTerminated indicates the engine process exited while a
	// caller still needed it. In-flight analysis requests fail with this
	// error instead of hanging.
	ErrProcessTerminated = errors.New("engine process terminated")

	// ErrRegistryClosed indicates StopAll has run; no new handles can be
	// created through this registry.
	ErrRegistryClosed = errors.New("engine registry closed")

	// ErrEngineNotFound indicates no live handle exists for the requested
	// (engine, session) pair.
	ErrEngineNotFound = errors.New("engine not found")

	// ErrAdmissionClosed indicates the admission controller has been shut
	// down; new acquisitions fail fast.
	ErrAdmissionClosed = errors.New("admission controller closed")
)
