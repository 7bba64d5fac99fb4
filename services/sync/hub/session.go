// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// outboundBuffer bounds each session's send queue. A full queue means
// the peer is too slow; messages to it are dropped, and the session is
// cleaned up once its own writes start failing.
const outboundBuffer = 32

var (
	// errSessionClosed indicates the session no longer accepts writes.
	errSessionClosed = errors.New("session closed")

	// errSessionBusy indicates the outbound queue is full.
	errSessionBusy = errors.New("session outbound queue full")
)

// frame is one queued outbound WebSocket message.
type frame struct {
	messageType int
	data        []byte
}

// Session is one connected client: a unique id plus the outbound
// channel feeding its single writer goroutine.
//
// Thread Safety:
//
//	Safe for concurrent use. All writes to the connection happen on
//	the writer goroutine, preserving FIFO order per session.
type Session struct {
	id   uint64
	conn *websocket.Conn

	out       chan frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(id uint64, conn *websocket.Conn) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		out:    make(chan frame, outboundBuffer),
		closed: make(chan struct{}),
	}
}

// ID returns the session id assigned by the hub.
func (s *Session) ID() uint64 {
	return s.id
}

// writeLoop drains the outbound queue onto the connection. A write
// failure closes the session; the read loop then observes the closed
// connection and unregisters it.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case f := <-s.out:
			if err := s.conn.WriteMessage(f.messageType, f.data); err != nil {
				slog.Warn("Session write failed",
					slog.Uint64("session_id", s.id),
					slog.String("error", err.Error()),
				)
				s.close()
				return
			}
		}
	}
}

// send queues one text frame. Never blocks: a closed session or full
// queue returns an error the caller may ignore (broadcasts do).
func (s *Session) send(data []byte) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}

	select {
	case s.out <- frame{messageType: websocket.TextMessage, data: data}:
		return nil
	case <-s.closed:
		return errSessionClosed
	default:
		return errSessionBusy
	}
}

// sendJSON marshals v and queues it as a text frame.
func (s *Session) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.send(data)
}

// sendControl queues a control frame (pong replies).
func (s *Session) sendControl(messageType int, data []byte) error {
	select {
	case s.out <- frame{messageType: messageType, data: data}:
		return nil
	case <-s.closed:
		return errSessionClosed
	default:
		return errSessionBusy
	}
}

// close tears the session down. Idempotent.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}
