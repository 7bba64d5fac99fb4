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

import "encoding/json"

// Message type tags understood by the hub.
const (
	msgBoardUpdate = "board_update"
	msgNewGame     = "new_game"
	msgPing        = "ping"
)

// Legacy routing markers. Older clients send untagged payloads
// identified by field presence; matching order is part of the wire
// contract and must not change.
const (
	legacyEngineIDField    = "engineId"
	legacyEngineIDValue    = "board_visualization"
	legacyFinalShapesField = "finalShapes"
)

// envelope is the tagged variant of the inbound wire message. Extra
// fields are preserved separately for legacy routing.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodeEnvelope parses raw into the tagged envelope plus the full
// field set for legacy inspection.
func decodeEnvelope(raw []byte) (envelope, map[string]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return envelope{}, nil, err
	}
	return env, fields, nil
}

// welcomeReply is sent once, before any other traffic on a session.
type welcomeReply struct {
	Status string `json:"status"`
	ID     uint64 `json:"id"`
}

// errorReply answers malformed or unroutable messages. The connection
// stays open.
type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorReply(message string) errorReply {
	return errorReply{Type: "error", Message: message}
}

// pongReply answers an application-level ping, sender only.
type pongReply struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// receiptReply acknowledges a legacy broadcast to its sender.
type receiptReply struct {
	Type string `json:"type"`
}

// fenUpdate is broadcast to every other session after a board update.
type fenUpdate struct {
	Type    string `json:"type"`
	FEN     string `json:"fen"`
	Variant string `json:"variant"`
	GameID  string `json:"game_id"`
}
