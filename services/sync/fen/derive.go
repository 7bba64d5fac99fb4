// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fen derives canonical FEN position strings from structured
// board snapshots.
//
// Derivation is a pure function: identical input always yields
// identical output, with no side effects, so it is unit-tested
// independently of any transport.
package fen

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MalformedSquareError reports a square name or piece code that cannot
// be placed on the board.
type MalformedSquareError struct {
	Square string
	Piece  string
}

// Error implements the error interface.
func (e *MalformedSquareError) Error() string {
	if e.Piece != "" {
		return fmt.Sprintf("malformed piece %q on square %q", e.Piece, e.Square)
	}
	return fmt.Sprintf("malformed square %q", e.Square)
}

// Derive converts a board snapshot into its canonical FEN string.
//
// Description:
//
//	Builds an 8x8 grid from two-character square names ('a'-'h' file,
//	'1'-'8' rank, ranks inverted since FEN prints the top rank first),
//	maps two-character piece codes (color + type) to case-mapped FEN
//	characters, and run-length-encodes empty runs per rank.
//
//	Side to move comes from move-list parity. Castling rights come
//	from four independent king/rook original-square checks; an empty
//	result renders as "-". The en-passant target is always "-": exact
//	last-move analysis is deliberately not tracked here, and the
//	halfmove clock is always reported as "0" for the same reason.
//
// Outputs:
//
//	PositionResult - The derived position.
//	error - *MalformedSquareError for an unplaceable square or piece.
func Derive(snap BoardSnapshot) (PositionResult, error) {
	var board [8][8]byte

	for square, piece := range snap.Pieces {
		// Names of a different length never described real squares in
		// the wire protocol; they are skipped, not rejected.
		if len(square) != 2 {
			continue
		}

		file := int(square[0] - 'a')
		rank := 8 - int(square[1]-'0')
		if file < 0 || file > 7 || rank < 0 || rank > 7 {
			return PositionResult{}, &MalformedSquareError{Square: square}
		}
		if len(piece) != 2 {
			return PositionResult{}, &MalformedSquareError{Square: square, Piece: piece}
		}

		board[rank][file] = pieceChar(piece[0], piece[1])
	}

	var rows [8]string
	for rank := 0; rank < 8; rank++ {
		var row strings.Builder
		empty := 0
		for file := 0; file < 8; file++ {
			cell := board[rank][file]
			if cell == 0 {
				empty++
				continue
			}
			if empty > 0 {
				row.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			row.WriteByte(cell)
		}
		if empty > 0 {
			row.WriteString(strconv.Itoa(empty))
		}
		rows[rank] = row.String()
	}

	activeColor := "w"
	if len(snap.MoveList)%2 != 0 {
		activeColor = "b"
	}

	fullmove := len(snap.MoveList)/2 + 1

	fen := fmt.Sprintf("%s %s %s %s %s %d",
		strings.Join(rows[:], "/"),
		activeColor,
		castlingRights(snap.Pieces),
		"-", // en passant: not tracked
		"0", // halfmove clock: not tracked
		fullmove,
	)

	return PositionResult{
		FEN:     fen,
		Variant: snap.Variant,
		GameID:  snap.GameID,
	}, nil
}

// pieceChar maps a color+type code ("wK", "bP") to its FEN character.
func pieceChar(color, pieceType byte) byte {
	r := rune(pieceType)
	if color == 'w' {
		return byte(unicode.ToUpper(r))
	}
	return byte(unicode.ToLower(r))
}

// castlingRights builds the castling field from original-square
// presence checks for each of the four king/rook combinations.
func castlingRights(pieces map[string]string) string {
	var rights strings.Builder

	whiteKing := pieces["e1"] == "wK"
	blackKing := pieces["e8"] == "bK"

	if whiteKing && pieces["h1"] == "wR" {
		rights.WriteByte('K')
	}
	if whiteKing && pieces["a1"] == "wR" {
		rights.WriteByte('Q')
	}
	if blackKing && pieces["h8"] == "bR" {
		rights.WriteByte('k')
	}
	if blackKing && pieces["a8"] == "bR" {
		rights.WriteByte('q')
	}

	if rights.Len() == 0 {
		return "-"
	}
	return rights.String()
}
