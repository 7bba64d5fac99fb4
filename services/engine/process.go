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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// DefaultLogLines is the diagnostic ring capacity used when Config
// does not override it.
const DefaultLogLines = 256

// Config describes how to spawn one engine process.
type Config struct {
	// Command is the engine executable (resolved via PATH lookup).
	Command string

	// Args are passed to the executable verbatim.
	Args []string

	// LogLines bounds the diagnostic ring buffer. Zero means
	// DefaultLogLines.
	LogLines int
}

// =============================================================================
// PROCESS
// =============================================================================

// Process wraps one external engine process speaking a line-oriented
// text protocol over stdin/stdout.
//
// Description:
//
//	Owns the OS process and its two pipes. Every line read from or
//	written to the engine is appended to a bounded diagnostic ring.
//	The registry is the sole owner of a Process; analysis jobs borrow
//	it for the duration of one request.
//
// Thread Safety:
//
//	Safe for concurrent use. Writes are serialized; the lines channel
//	has a single producer (the internal read loop).
type Process struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	lines chan string
	ring  *lineRing

	lastCmd   string
	lastCmdMu sync.Mutex
	writeMu   sync.Mutex

	alive   atomic.Bool
	killed  chan struct{}
	done    chan struct{}
	exitErr error

	cancel   context.CancelFunc
	killOnce sync.Once
}

// startProcess spawns the engine and begins the read loop.
//
// Spawn failures are returned immediately and never retried.
func startProcess(cfg Config) (*Process, error) {
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailed, cfg.Command, err)
	}

	// Process lifetime is independent of any caller's context; the
	// registry decides when it dies.
	ctx, cancel := context.WithCancel(context.Background())

	p := &Process{
		config: cfg,
		lines:  make(chan string, 128),
		ring:   newLineRing(cfg.LogLines),
		killed: make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	p.cmd = exec.CommandContext(ctx, path, cfg.Args...)

	p.stdin, err = p.cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}

	if err := p.cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailed, cfg.Command, err)
	}

	p.alive.Store(true)
	recordSpawn(context.Background(), cfg.Command, true)

	slog.Info("Engine process started",
		slog.String("command", path),
		slog.Int("pid", p.cmd.Process.Pid),
	)

	go p.run(stdout)
	return p, nil
}

// run reads engine output until EOF, then reaps the process.
func (p *Process) run(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	// Long multipv lines can exceed the default scanner limit.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		p.ring.Append(line)
		select {
		case p.lines <- line:
		case <-p.killed:
			// Terminating; keep draining so Wait does not block on a
			// full pipe.
		}
	}
	close(p.lines)

	p.exitErr = p.cmd.Wait()
	p.alive.Store(false)
	close(p.done)

	slog.Info("Engine process exited",
		slog.String("command", p.config.Command),
		slog.Any("error", p.exitErr),
	)
}

// SendLine writes one protocol line to the engine's stdin.
//
// Outputs:
//
//	error - ErrProcessTerminated if the process has exited or the pipe
//	is broken.
func (p *Process) SendLine(text string) error {
	if !p.alive.Load() {
		return ErrProcessTerminated
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: write: %v", ErrProcessTerminated, err)
	}

	p.ring.Append("> " + text)
	p.lastCmdMu.Lock()
	p.lastCmd = text
	p.lastCmdMu.Unlock()
	return nil
}

// Lines returns the engine's output stream, one protocol line per
// receive. The channel is closed when the process closes its output or
// is killed.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Terminate kills the process and blocks until it is reaped.
// Idempotent; safe to call on an already dead process.
func (p *Process) Terminate() {
	p.killOnce.Do(func() {
		close(p.killed)
		_ = p.stdin.Close()
		p.cancel()
	})
	<-p.done
}

// Alive reports whether the OS process is still running.
func (p *Process) Alive() bool {
	return p.alive.Load()
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Logs returns the buffered diagnostic lines, oldest first.
func (p *Process) Logs() []string {
	return p.ring.Snapshot()
}

// ClearLogs discards the diagnostic ring contents.
func (p *Process) ClearLogs() {
	p.ring.Clear()
}

// LastCommand returns the most recent line sent to the engine.
func (p *Process) LastCommand() string {
	p.lastCmdMu.Lock()
	defer p.lastCmdMu.Unlock()
	return p.lastCmd
}
