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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicBestMoves is the notification topic for streamed analysis
// payloads.
const TopicBestMoves = "best-moves-payload"

// Sink receives analysis payloads destined for the GUI shell.
type Sink interface {
	Emit(topic string, payload any)
}

// AnalysisRequest describes one best-move streaming job. The position
// payload is opaque to the orchestrator; the engine interprets it.
type AnalysisRequest struct {
	// FEN is the position to analyze. Empty means the start position.
	FEN string `json:"fen"`

	// Depth bounds the search. Zero means the engine default.
	Depth int `json:"depth"`

	// MultiPV is the number of principal variations to stream.
	MultiPV int `json:"multipv"`
}

// EngineLine is one parsed principal variation update.
type EngineLine struct {
	Depth   int      `json:"depth"`
	MultiPV int      `json:"multipv"`
	ScoreCP int      `json:"score_cp"`
	Mate    int      `json:"mate"`
	NPS     int64    `json:"nps"`
	PV      []string `json:"pv"`
}

// BestMovesPayload is streamed to the notification sink for every
// variation update the engine reports.
type BestMovesPayload struct {
	JobID   string     `json:"job_id"`
	Engine  string     `json:"engine"`
	Session string     `json:"session"`
	FEN     string     `json:"fen"`
	Line    EngineLine `json:"line"`
}

// =============================================================================
// ANALYZER
// =============================================================================

// Analyzer runs admitted best-move streaming jobs against registry
// engines.
//
// Thread Safety:
//
//	Safe for concurrent use; concurrency is bounded by the admission
//	controller.
type Analyzer struct {
	registry  *Registry
	admission *AdmissionController
	sink      Sink

	keyMu sync.Map // Key -> *sync.Mutex for per-key job serialization
}

// NewAnalyzer wires an analyzer to its registry, permit pool, and
// notification sink.
func NewAnalyzer(registry *Registry, admission *AdmissionController, sink Sink) *Analyzer {
	return &Analyzer{
		registry:  registry,
		admission: admission,
		sink:      sink,
	}
}

// BestMoves streams best-move updates for one position until the
// engine reports its final move.
//
// Description:
//
//	Acquires an analysis permit (blocking, cancellable), obtains or
//	spawns the engine for key, issues the position and search
//	commands, and forwards every parsed variation update to the sink.
//	Returns the engine's final move.
//
// Outputs:
//
//	string - The engine's best move.
//	error - ctx.Err() on cancellation, ErrAdmissionClosed after
//	shutdown, ErrProcessTerminated if the engine dies mid-job.
func (a *Analyzer) BestMoves(ctx context.Context, key Key, cfg Config, req AnalysisRequest) (string, error) {
	jobID := uuid.New().String()
	ctx, span := startAnalysisSpan(ctx, key, jobID)
	defer span.End()

	// One job streams per key at a time. A process has a single Lines
	// channel, so a second concurrent job on the same key could consume
	// the first job's final move. The lock is taken before admission so
	// a job queued behind a busy key holds no permit while it waits.
	lockI, _ := a.keyMu.LoadOrStore(key, &sync.Mutex{})
	lock := lockI.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	waitStart := time.Now()
	permit, err := a.admission.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer permit.Release()
	recordAdmissionWait(ctx, time.Since(waitStart))

	proc, err := a.registry.GetOrCreate(ctx, key, cfg)
	if err != nil {
		return "", err
	}

	start := time.Now()
	if err := a.sendSearch(proc, req); err != nil {
		a.registry.reap(key, proc)
		recordAnalysis(ctx, key, time.Since(start), "terminated")
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			// Best effort; the engine keeps running for the next job.
			_ = proc.SendLine("stop")
			recordAnalysis(ctx, key, time.Since(start), "cancelled")
			return "", ctx.Err()

		case line, ok := <-proc.Lines():
			if !ok {
				a.registry.reap(key, proc)
				recordAnalysis(ctx, key, time.Since(start), "terminated")
				return "", fmt.Errorf("%w: %s", ErrProcessTerminated, key)
			}
			if el, ok := parseInfoLine(line); ok {
				a.sink.Emit(TopicBestMoves, BestMovesPayload{
					JobID:   jobID,
					Engine:  key.Engine,
					Session: key.Session,
					FEN:     req.FEN,
					Line:    el,
				})
			}
			if move, ok := parseBestMove(line); ok {
				recordAnalysis(ctx, key, time.Since(start), "ok")
				return move, nil
			}
		}
	}
}

// Stop asks the engine for key to end its current search. The process
// stays alive for subsequent jobs.
func (a *Analyzer) Stop(key Key) error {
	proc := a.registry.Get(key)
	if proc == nil {
		return ErrEngineNotFound
	}
	return proc.SendLine("stop")
}

// sendSearch issues the position and go commands for req.
func (a *Analyzer) sendSearch(proc *Process, req AnalysisRequest) error {
	if req.MultiPV > 1 {
		if err := proc.SendLine(fmt.Sprintf("setoption name MultiPV value %d", req.MultiPV)); err != nil {
			return err
		}
	}

	position := "position startpos"
	if req.FEN != "" {
		position = "position fen " + req.FEN
	}
	if err := proc.SendLine(position); err != nil {
		return err
	}

	search := "go infinite"
	if req.Depth > 0 {
		search = fmt.Sprintf("go depth %d", req.Depth)
	}
	return proc.SendLine(search)
}

// =============================================================================
// LINE PARSING
// =============================================================================

// parseInfoLine extracts a variation update from an "info ... pv ..."
// line. Lines without a pv section are skipped.
func parseInfoLine(line string) (EngineLine, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return EngineLine{}, false
	}

	var el EngineLine
	sawPV := false
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				el.Depth, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "multipv":
			if i+1 < len(fields) {
				el.MultiPV, _ = strconv.Atoi(fields[i+1])
				i++
			}
		case "nps":
			if i+1 < len(fields) {
				el.NPS, _ = strconv.ParseInt(fields[i+1], 10, 64)
				i++
			}
		case "score":
			if i+2 < len(fields) {
				switch fields[i+1] {
				case "cp":
					el.ScoreCP, _ = strconv.Atoi(fields[i+2])
				case "mate":
					el.Mate, _ = strconv.Atoi(fields[i+2])
				}
				i += 2
			}
		case "pv":
			el.PV = append([]string(nil), fields[i+1:]...)
			sawPV = true
			i = len(fields)
		}
	}
	return el, sawPV
}

// parseBestMove extracts the final move from a "bestmove ..." line.
func parseBestMove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) >= 2 && fields[0] == "bestmove" {
		return fields[1], true
	}
	return "", false
}
