// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package deps

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// maxRollFiles and maxRollSize match the teacher's own log-rotation
// settings: ten megabytes per file, three rolled files kept.
// maxRollSize is in kilobytes, the unit rotator.New takes.
const (
	maxRollSize  = 10 * 1024
	maxRollFiles = 3
)

// logWriter fans log output out to both stdout and a rotated file, the
// same split the teacher's full node uses for its own logging.
type logWriter struct {
	rotator *rotator.Rotator
}

func (w logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return w.rotator.Write(p)
}

// NewDefaultLogger builds a btclog.Logger for subsystem that writes to
// stdout and to a rotated file under logDir. It is the ambient default
// this module's core never constructs on its own (spec-driven code
// only ever takes the btclog.Logger interface); an embedder who does
// not care to supply its own logger can use this one.
func NewDefaultLogger(logDir, logFilename, subsystem string) (btclog.Logger, error) {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("deps: creating log directory: %w", err)
	}

	r, err := rotator.New(filepath.Join(logDir, logFilename), maxRollSize, false, maxRollFiles)
	if err != nil {
		return nil, fmt.Errorf("deps: initializing log rotation: %w", err)
	}

	backend := btclog.NewBackend(logWriter{rotator: r})
	logger := backend.Logger(subsystem)
	logger.SetLevel(btclog.LevelInfo)
	return logger, nil
}
