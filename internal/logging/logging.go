// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the shared structured logger.
//
// The TUI owns stdout/stderr, so logs go to a file under the state
// directory. Everything below the UI (transport, parser, reducer, history)
// logs through a *zap.Logger handed down at construction; nothing writes to
// the terminal behind the renderer's back.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFileName is the log file created under the state directory.
const DefaultFileName = "minato.log"

// Options controls logger construction.
type Options struct {
	// Dir is the directory for the log file. Empty means ~/.minato.
	Dir string
	// Debug lowers the level to zap.DebugLevel.
	Debug bool
	// Console routes logs to stderr instead of a file. Used by one-shot
	// CLI commands where no TUI owns the terminal.
	Console bool
}

// New builds the application logger.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Console {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		return cfg.Build()
	}

	dir := opts.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".minato")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, DefaultFileName)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

// Nop returns a logger that discards everything. Tests and callers that do
// not care about logs pass this down instead of nil.
func Nop() *zap.Logger {
	return zap.NewNop()
}
