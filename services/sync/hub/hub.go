// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hub implements the WebSocket session registry and message
// router for board-state synchronization.
//
// # Description
//
// Every connection becomes a Session with a monotonically increasing
// id, a welcome message, and a single writer goroutine. Inbound text
// frames are routed by their "type" tag; untagged legacy payloads are
// routed by field presence. Broadcasts fan out to every session except
// the sender, dropping frames to slow or closed peers rather than
// blocking the hub.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. The session map is
// guarded by one mutex; per-session write ordering is preserved by the
// session's writer goroutine.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/GambitLocal/services/sync/fen"
	"github.com/AleutianAI/GambitLocal/services/sync/notify"
	"github.com/AleutianAI/GambitLocal/services/sync/observability"
)

// Hub owns the set of live sessions and routes every inbound message.
type Hub struct {
	sink notify.Sink

	mu       sync.Mutex
	sessions map[uint64]*Session

	nextID atomic.Uint64
}

// New creates a hub emitting events to sink.
func New(sink notify.Sink) *Hub {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Hub{
		sink:     sink,
		sessions: make(map[uint64]*Session),
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close tears down every session. New connections may still register
// afterwards; callers shut the HTTP listener first.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[uint64]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// HandleConn runs one WebSocket session to completion. It sends the
// welcome message, registers the session, then blocks reading frames
// until the peer disconnects or a protocol failure closes the socket.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	id := h.nextID.Add(1)
	s := newSession(id, conn)

	// Transport-level pings are answered on the writer goroutine so
	// pongs never interleave with a data frame mid-write.
	conn.SetPingHandler(func(appData string) error {
		return s.sendControl(websocket.PongMessage, []byte(appData))
	})

	go s.writeLoop()

	// The welcome must be the first frame the client observes, so it
	// is queued before the session can receive broadcasts.
	if err := s.sendJSON(welcomeReply{Status: "connected", ID: id}); err != nil {
		slog.Warn("Welcome send failed",
			slog.Uint64("session_id", id),
			slog.String("error", err.Error()),
		)
		s.close()
		return
	}

	h.register(s)
	observability.SessionOpened()
	slog.Info("Session connected", slog.Uint64("session_id", id))

	defer func() {
		h.unregister(id)
		s.close()
		observability.SessionClosed()
		slog.Info("Session disconnected", slog.Uint64("session_id", id))
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Session read failed",
					slog.Uint64("session_id", id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			h.route(s, data)
		case websocket.BinaryMessage:
			observability.MessageRouted("invalid")
			_ = s.sendJSON(newErrorReply("Binary messages not supported"))
		}
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// =============================================================================
// ROUTING
// =============================================================================

// route dispatches one inbound text frame. Malformed or unroutable
// frames get an error reply; the session always stays open.
func (h *Hub) route(sender *Session, raw []byte) {
	env, fields, err := decodeEnvelope(raw)
	if err != nil {
		observability.MessageRouted("invalid")
		_ = sender.sendJSON(newErrorReply("Invalid JSON"))
		return
	}

	switch env.Type {
	case msgBoardUpdate:
		observability.MessageRouted(msgBoardUpdate)
		h.handleBoardUpdate(sender, env.Data)
		return
	case msgNewGame:
		observability.MessageRouted(msgNewGame)
		h.handleNewGame(env.Data)
		return
	case msgPing:
		observability.MessageRouted(msgPing)
		_ = sender.sendJSON(pongReply{
			Type:      "pong",
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}

	// Untagged legacy payloads route by field presence. A string
	// engineId consumes the message outright: only the board
	// visualization value broadcasts, every other identifier is
	// dropped without a reply, and finalShapes is never consulted.
	if engineID, ok := fields[legacyEngineIDField]; ok {
		var value string
		if json.Unmarshal(engineID, &value) == nil {
			observability.MessageRouted("legacy")
			if value == legacyEngineIDValue {
				h.broadcastRaw(sender, raw)
				_ = sender.sendJSON(receiptReply{Type: "received"})
			}
			return
		}
	}
	if _, ok := fields[legacyFinalShapesField]; ok {
		observability.MessageRouted("legacy")
		h.broadcastRaw(sender, raw)
		_ = sender.sendJSON(receiptReply{Type: "received"})
		return
	}

	observability.MessageRouted("unknown")
	_ = sender.sendJSON(newErrorReply(fmt.Sprintf("Unknown message type: %s", env.Type)))
}

// handleBoardUpdate derives a position from the snapshot, notifies the
// sink, and broadcasts the result to every other session. Snapshots
// that cannot be derived are logged and skipped without a reply.
func (h *Hub) handleBoardUpdate(sender *Session, data json.RawMessage) {
	if len(data) == 0 {
		slog.Warn("Board update missing data", slog.Uint64("session_id", sender.id))
		observability.DerivationDone(false)
		return
	}

	var snap fen.BoardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Board update decode failed",
			slog.Uint64("session_id", sender.id),
			slog.String("error", err.Error()),
		)
		observability.DerivationDone(false)
		return
	}

	result, err := fen.Derive(snap)
	if err != nil {
		slog.Warn("Position derivation failed",
			slog.Uint64("session_id", sender.id),
			slog.String("game_id", snap.GameID),
			slog.String("error", err.Error()),
		)
		observability.DerivationDone(false)
		return
	}
	observability.DerivationDone(true)

	h.sink.Emit(notify.TopicFenUpdate, result.FEN)
	h.sink.Emit(notify.TopicBoardState, result)

	h.broadcastJSON(sender, fenUpdate{
		Type:    "fen_update",
		FEN:     result.FEN,
		Variant: result.Variant,
		GameID:  result.GameID,
	})
}

// handleNewGame forwards the notification payload to the sink verbatim.
func (h *Hub) handleNewGame(data json.RawMessage) {
	h.sink.Emit(notify.TopicNewGame, string(data))
}

// =============================================================================
// BROADCAST
// =============================================================================

// broadcastJSON marshals v once and fans it out to every session
// except sender.
func (h *Hub) broadcastJSON(sender *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Broadcast marshal failed", slog.String("error", err.Error()))
		return
	}
	h.broadcastRaw(sender, data)
}

// broadcastRaw fans raw out to every session except sender. Delivery
// failures to individual recipients are counted and skipped; one slow
// peer never stalls the rest.
func (h *Hub) broadcastRaw(sender *Session, raw []byte) {
	h.mu.Lock()
	recipients := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if sender != nil && s.id == sender.id {
			continue
		}
		recipients = append(recipients, s)
	}
	h.mu.Unlock()

	observability.BroadcastSent()
	for _, s := range recipients {
		if err := s.send(raw); err != nil {
			observability.BroadcastDropped()
			slog.Warn("Broadcast delivery dropped",
				slog.Uint64("session_id", s.id),
				slog.String("error", err.Error()),
			)
		}
	}
}
