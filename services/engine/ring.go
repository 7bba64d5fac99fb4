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

import "sync"

// lineRing keeps the most recent N diagnostic lines for an engine
// process. Older lines are overwritten once the capacity is reached.
//
// Thread Safety:
//
//	Safe for concurrent use.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity <= 0 {
		capacity = DefaultLogLines
	}
	return &lineRing{lines: make([]string, capacity)}
}

// Append records one line, evicting the oldest when full.
func (r *lineRing) Append(line string) {
	r.mu.Lock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot returns the buffered lines in arrival order.
func (r *lineRing) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Clear discards all buffered lines.
func (r *lineRing) Clear() {
	r.mu.Lock()
	for i := range r.lines {
		r.lines[i] = ""
	}
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
