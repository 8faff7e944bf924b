package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"

	"github.com/meowcoin-foundation/meowheaders/chainmgr"
	"github.com/meowcoin-foundation/meowheaders/headerfs"
	"github.com/meowcoin-foundation/meowheaders/log"
)

var logRotator *rotator.Rotator

// logger is headerctl's own top-level logger, separate from the per-package
// loggers wired below.
var logger log.Logger = log.Disabled

// initLogRotator opens logFile (creating its directory if needed) and
// wires every package's logger to it. An empty logFile keeps logging
// disabled.
func initLogRotator(logFile, levelStr string) error {
	if logFile == "" {
		return nil
	}

	level, _ := log.LevelFromString(levelStr)

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return err
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logRotator = r

	backend := log.NewBackend(writerFunc(r.Write), "HCTL")
	backend.SetLevel(level)
	logger = backend

	headerfsLogger := log.NewBackend(writerFunc(r.Write), "HFS")
	headerfsLogger.SetLevel(level)
	headerfs.UseLogger(headerfsLogger)

	chainmgrLogger := log.NewBackend(writerFunc(r.Write), "CMGR")
	chainmgrLogger.SetLevel(level)
	chainmgr.UseLogger(chainmgrLogger)

	return nil
}

// writerFunc adapts a bare Write method to io.Writer, avoiding a dependency
// on *rotator.Rotator's exact type in callers that only need to write.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

var _ io.Writer = writerFunc(nil)
