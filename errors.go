package leafz

import (
	"github.com/cockroachdb/errors"
	"github.com/zoobzio/leafz/tracelog"
)

// Errors surfaced to callers. Test for them with errors.Is from
// github.com/cockroachdb/errors; wrapped causes are preserved.
var (
	// ErrStartupConfig reports a configuration or log creation problem found
	// before any event was processed.
	ErrStartupConfig = errors.New("leafz: startup configuration error")

	// ErrCorruptionRisk reports that the log could not grow mid-run. Recording
	// has halted; Stop still leaves a truncated, readable log.
	ErrCorruptionRisk = errors.New("leafz: log growth failed, recording halted")

	// ErrAlreadyStarted is returned by Start and Configure on a running tracer.
	ErrAlreadyStarted = errors.New("leafz: tracer already started")

	// ErrNotStarted is returned by Stop on a tracer that is not running.
	ErrNotStarted = errors.New("leafz: tracer not started")
)

func startupError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrStartupConfig)
}

func corruptionError(err error) error {
	if errors.Is(err, tracelog.ErrRemap) {
		return errors.Mark(err, ErrCorruptionRisk)
	}
	return err
}
