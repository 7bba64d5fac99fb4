// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates external chess engine processes.
//
// # Description
//
// An engine is a long-lived external process speaking a line-oriented
// text protocol (UCI-shaped) over stdin/stdout. This package owns
// three concerns:
//
//   - Process: one spawned engine, its pipes, liveness, and a bounded
//     diagnostic ring of recent protocol lines.
//   - Registry: at most one live process per (engine, session) key,
//     with per-key spawn serialization and registry-wide shutdown.
//   - AdmissionController: a counting permit pool bounding how many
//     analysis jobs stream results concurrently.
//
// The Analyzer ties them together: it acquires a permit, borrows a
// process from the registry, and streams parsed best-move updates to a
// notification sink until the engine reports its final move.
//
// # Failure semantics
//
// Spawn failures surface once and are never retried. A process that
// exits mid-analysis fails the in-flight job with ErrProcessTerminated
// and is reaped from the registry; it never hangs the caller. Registry
// shutdown is an explicit operation, not a failure path, and is safe
// to run concurrently with active jobs.
package engine
