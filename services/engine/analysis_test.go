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
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink captures emitted payloads for assertions.
type recordingSink struct {
	mu       sync.Mutex
	payloads []BestMovesPayload
}

func (s *recordingSink) Emit(topic string, payload any) {
	if topic != TopicBestMoves {
		return
	}
	bp, ok := payload.(BestMovesPayload)
	if !ok {
		return
	}
	s.mu.Lock()
	s.payloads = append(s.payloads, bp)
	s.mu.Unlock()
}

func (s *recordingSink) Payloads() []BestMovesPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BestMovesPayload, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// fakeEngineScript answers any "go" command with one variation update
// and a final move, so analyses complete deterministically.
const fakeEngineScript = `
while read line; do
  case "$line" in
    go*)
      echo "info depth 12 multipv 1 score cp 35 nps 420000 pv e2e4 e7e5"
      echo "bestmove e2e4 ponder e7e5"
      ;;
    quit)
      exit 0
      ;;
  esac
done
`

// silentEngineScript swallows every command without answering, for
// termination-path tests.
const silentEngineScript = `
while read line; do
  :
done
`

func fakeEngineConfig(script string) Config {
	return Config{Command: "sh", Args: []string{"-c", script}}
}

func newTestAnalyzer(t *testing.T, slots int, sink Sink) (*Analyzer, *Registry, *AdmissionController) {
	t.Helper()
	requireTool(t, "sh")

	registry := NewRegistry()
	admission := NewAdmissionController(slots)
	t.Cleanup(func() {
		admission.Close()
		registry.StopAll()
	})
	return NewAnalyzer(registry, admission, sink), registry, admission
}

func TestAnalyzer_BestMoves(t *testing.T) {
	sink := &recordingSink{}
	analyzer, _, _ := newTestAnalyzer(t, 2, sink)

	key := Key{Engine: "stockfish", Session: "tab-1"}
	req := AnalysisRequest{FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Depth: 12}

	move, err := analyzer.BestMoves(context.Background(), key, fakeEngineConfig(fakeEngineScript), req)
	if err != nil {
		t.Fatalf("BestMoves() error = %v", err)
	}
	if move != "e2e4" {
		t.Errorf("BestMoves() = %q, want %q", move, "e2e4")
	}

	payloads := sink.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("sink payloads = %d, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Engine != key.Engine || p.Session != key.Session || p.FEN != req.FEN {
		t.Errorf("payload identity = %+v", p)
	}
	if p.JobID == "" {
		t.Error("payload missing job id")
	}
	if p.Line.Depth != 12 || p.Line.ScoreCP != 35 || p.Line.NPS != 420000 {
		t.Errorf("payload line = %+v", p.Line)
	}
	if len(p.Line.PV) != 2 || p.Line.PV[0] != "e2e4" {
		t.Errorf("payload pv = %v", p.Line.PV)
	}
}

func TestAnalyzer_BestMoves_ReusesEngineAcrossJobs(t *testing.T) {
	sink := &recordingSink{}
	analyzer, registry, _ := newTestAnalyzer(t, 2, sink)

	key := Key{Engine: "stockfish", Session: "tab-1"}
	cfg := fakeEngineConfig(fakeEngineScript)

	if _, err := analyzer.BestMoves(context.Background(), key, cfg, AnalysisRequest{Depth: 8}); err != nil {
		t.Fatalf("first BestMoves() error = %v", err)
	}
	first := registry.Get(key)

	if _, err := analyzer.BestMoves(context.Background(), key, cfg, AnalysisRequest{Depth: 8}); err != nil {
		t.Fatalf("second BestMoves() error = %v", err)
	}
	if second := registry.Get(key); second != first {
		t.Error("second job did not reuse the live engine process")
	}
}

func TestAnalyzer_BestMoves_ConcurrentJobsSameKeySerialized(t *testing.T) {
	sink := &recordingSink{}
	analyzer, _, _ := newTestAnalyzer(t, 2, sink)

	key := Key{Engine: "stockfish", Session: "tab-1"}
	cfg := fakeEngineConfig(fakeEngineScript)

	// Both jobs share one engine process. Each must read its own final
	// move; with two permits available, only per-key serialization
	// keeps one job from consuming the other's bestmove line.
	const jobs = 2
	moves := make([]string, jobs)
	errs := make([]error, jobs)
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			moves[i], errs[i] = analyzer.BestMoves(context.Background(), key, cfg, AnalysisRequest{Depth: 8})
		}(i)
	}
	wg.Wait()

	for i := 0; i < jobs; i++ {
		if errs[i] != nil {
			t.Fatalf("job %d: BestMoves() error = %v", i, errs[i])
		}
		if moves[i] != "e2e4" {
			t.Errorf("job %d: BestMoves() = %q, want %q", i, moves[i], "e2e4")
		}
	}
}

func TestAnalyzer_BestMoves_CancelledContext(t *testing.T) {
	sink := &recordingSink{}
	analyzer, registry, _ := newTestAnalyzer(t, 2, sink)

	key := Key{Engine: "stockfish", Session: "tab-1"}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := analyzer.BestMoves(ctx, key, fakeEngineConfig(silentEngineScript), AnalysisRequest{})
		done <- err
	}()

	// Let the job reach its streaming loop before cancelling.
	deadline := time.After(5 * time.Second)
	for registry.Get(key) == nil {
		select {
		case <-deadline:
			t.Fatal("engine never spawned")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("BestMoves() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("BestMoves() did not return after cancellation")
	}

	// The engine survives cancellation for the next job.
	if registry.Get(key) == nil {
		t.Error("engine removed after cancelled job")
	}
}

func TestAnalyzer_BestMoves_EngineDiesMidJob(t *testing.T) {
	sink := &recordingSink{}
	analyzer, registry, _ := newTestAnalyzer(t, 2, sink)

	key := Key{Engine: "stockfish", Session: "tab-1"}

	done := make(chan error, 1)
	go func() {
		_, err := analyzer.BestMoves(context.Background(), key, fakeEngineConfig(silentEngineScript), AnalysisRequest{})
		done <- err
	}()

	deadline := time.After(5 * time.Second)
	for registry.Get(key) == nil {
		select {
		case <-deadline:
			t.Fatal("engine never spawned")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := registry.Kill(key); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrProcessTerminated) {
			t.Errorf("BestMoves() error = %v, want ErrProcessTerminated", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("BestMoves() did not observe engine death")
	}

	if registry.Get(key) != nil {
		t.Error("dead engine handle still registered")
	}
}

func TestAnalyzer_BestMoves_ClosedAdmission(t *testing.T) {
	sink := &recordingSink{}
	analyzer, _, admission := newTestAnalyzer(t, 1, sink)

	admission.Close()

	_, err := analyzer.BestMoves(context.Background(),
		Key{Engine: "stockfish", Session: "tab-1"},
		fakeEngineConfig(fakeEngineScript), AnalysisRequest{})
	if !errors.Is(err, ErrAdmissionClosed) {
		t.Errorf("BestMoves() error = %v, want ErrAdmissionClosed", err)
	}
}

func TestAnalyzer_Stop_NotFound(t *testing.T) {
	sink := &recordingSink{}
	analyzer, _, _ := newTestAnalyzer(t, 1, sink)

	err := analyzer.Stop(Key{Engine: "stockfish", Session: "tab-1"})
	if !errors.Is(err, ErrEngineNotFound) {
		t.Errorf("Stop() error = %v, want ErrEngineNotFound", err)
	}
}

func TestParseInfoLine(t *testing.T) {
	line := "info depth 20 seldepth 28 multipv 2 score cp -17 nodes 12345 nps 987654 time 42 pv d2d4 d7d5 c2c4"
	el, ok := parseInfoLine(line)
	if !ok {
		t.Fatal("parseInfoLine() rejected a pv line")
	}
	if el.Depth != 20 || el.MultiPV != 2 || el.ScoreCP != -17 || el.NPS != 987654 {
		t.Errorf("parseInfoLine() = %+v", el)
	}
	if len(el.PV) != 3 || el.PV[0] != "d2d4" || el.PV[2] != "c2c4" {
		t.Errorf("parseInfoLine() pv = %v", el.PV)
	}
}

func TestParseInfoLine_Mate(t *testing.T) {
	el, ok := parseInfoLine("info depth 10 score mate 3 pv h5f7")
	if !ok {
		t.Fatal("parseInfoLine() rejected a mate line")
	}
	if el.Mate != 3 || el.ScoreCP != 0 {
		t.Errorf("parseInfoLine() = %+v", el)
	}
}

func TestParseInfoLine_Rejections(t *testing.T) {
	cases := []string{
		"",
		"bestmove e2e4",
		"info depth 5 nodes 100",
		"readyok",
	}
	for _, line := range cases {
		if _, ok := parseInfoLine(line); ok {
			t.Errorf("parseInfoLine(%q) accepted, want rejected", line)
		}
	}
}

func TestParseBestMove(t *testing.T) {
	move, ok := parseBestMove("bestmove e2e4 ponder e7e5")
	if !ok || move != "e2e4" {
		t.Errorf("parseBestMove() = %q, %v", move, ok)
	}
	if _, ok := parseBestMove("info depth 1 pv e2e4"); ok {
		t.Error("parseBestMove() accepted an info line")
	}
	if _, ok := parseBestMove("bestmove"); ok {
		t.Error("parseBestMove() accepted a bare bestmove")
	}
}
