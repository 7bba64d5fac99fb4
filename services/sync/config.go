// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sync holds the sync server's shared configuration.
package sync

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the sync server configuration. Values load from an
// optional YAML file, then environment variables override.
type Config struct {
	// ListenAddr is the HTTP bind address. Loopback by default: the
	// server fronts a local GUI shell, not a network.
	ListenAddr string `yaml:"listen_addr"`

	// AnalysisSlots bounds concurrently running engine analyses.
	AnalysisSlots int `yaml:"analysis_slots"`

	// EngineLogLines sizes each engine's diagnostic ring.
	EngineLogLines int `yaml:"engine_log_lines"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:3030",
		AnalysisSlots:  2,
		EngineLogLines: 256,
	}
}

// LoadConfig builds the effective configuration.
//
// Description:
//
//	Starts from defaults, merges the YAML file at path if it exists
//	(a missing file is not an error), then applies environment
//	overrides GAMBIT_SYNC_ADDR, GAMBIT_ANALYSIS_SLOTS, and
//	GAMBIT_ENGINE_LOG_LINES.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults plus env are a complete configuration.
		default:
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if addr := os.Getenv("GAMBIT_SYNC_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if slots := os.Getenv("GAMBIT_ANALYSIS_SLOTS"); slots != "" {
		n, err := strconv.Atoi(slots)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid GAMBIT_ANALYSIS_SLOTS %q", slots)
		}
		cfg.AnalysisSlots = n
	}
	if lines := os.Getenv("GAMBIT_ENGINE_LOG_LINES"); lines != "" {
		n, err := strconv.Atoi(lines)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid GAMBIT_ENGINE_LOG_LINES %q", lines)
		}
		cfg.EngineLogLines = n
	}

	return cfg, nil
}
