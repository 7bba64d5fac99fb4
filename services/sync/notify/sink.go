// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify defines the notification sink consumed by the sync
// server to reach the GUI shell's event system.
//
// The shell's real emitter lives outside this repository; deployments
// adapt it to Sink. SlogSink is the default standalone implementation
// and BufferedSink supports tests.
package notify

import (
	"log/slog"
	"sync"
)

// Topics emitted by the sync server.
const (
	// TopicFenUpdate carries the bare FEN string after a derivation.
	TopicFenUpdate = "fen-update"

	// TopicBoardState carries the full PositionResult.
	TopicBoardState = "board-state-update"

	// TopicNewGame forwards a client's new-game notification verbatim.
	TopicNewGame = "new-game"
)

// Sink accepts a named topic and a JSON-serializable payload.
//
// Implementations must be safe for concurrent use and must not block:
// emission happens on hub and handler goroutines.
type Sink interface {
	Emit(topic string, payload any)
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// SlogSink logs every event. Used when no GUI shell is attached.
type SlogSink struct{}

// Emit logs the event at info level.
func (SlogSink) Emit(topic string, payload any) {
	slog.Info("Event emitted",
		slog.String("topic", topic),
		slog.Any("payload", payload),
	)
}

// NopSink discards all events.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(string, any) {}

// Event is one captured emission.
type Event struct {
	Topic   string
	Payload any
}

// BufferedSink collects events in memory for tests.
type BufferedSink struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event to the buffer.
func (s *BufferedSink) Emit(topic string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, Event{Topic: topic, Payload: payload})
	s.mu.Unlock()
}

// Events returns a copy of all captured events.
func (s *BufferedSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByTopic returns captured events matching topic.
func (s *BufferedSink) ByTopic(topic string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

var (
	_ Sink = SlogSink{}
	_ Sink = NopSink{}
	_ Sink = (*BufferedSink)(nil)
)
