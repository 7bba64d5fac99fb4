// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fen

// BoardFlags carries client-side hints attached to a snapshot.
type BoardFlags struct {
	PossibleCastling  bool `json:"possibleCastling"`
	PossibleEnPassant bool `json:"possibleEnPassant"`
	BoardFlipped      bool `json:"boardFlipped"`
}

// SquareInfo is one cell of an optional detailed board layout.
type SquareInfo struct {
	Square string  `json:"square"`
	Piece  *string `json:"piece"`
}

// BoardLayout is an optional detailed description of the board shape.
// Derivation ignores it; it is preserved for clients that send it.
type BoardLayout struct {
	Files   int            `json:"files"`
	Ranks   int            `json:"ranks"`
	Squares [][]SquareInfo `json:"squares"`
}

// BoardSnapshot is a structured board state received from a client.
// It is never mutated; derivation produces a new PositionResult.
type BoardSnapshot struct {
	GameID           string            `json:"gameId" binding:"required"`
	Pieces           map[string]string `json:"pieces" binding:"required"`
	MoveList         []string          `json:"moveList"`
	RawMoveText      *string           `json:"rawMoveText"`
	Variant          string            `json:"variant"`
	Flags            BoardFlags        `json:"flags"`
	BoardOrientation string            `json:"boardOrientation"`
	BoardLayout      *BoardLayout      `json:"boardLayout"`
	Timestamp        uint64            `json:"timestamp"`
}

// PositionResult is the derived canonical position. Immutable,
// broadcast-only.
type PositionResult struct {
	FEN     string `json:"fen"`
	Variant string `json:"variant"`
	GameID  string `json:"game_id"`
}
