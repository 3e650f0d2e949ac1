package liveness

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrFatal is returned by a loop whose error policy ended the process.
var ErrFatal = errors.New("liveness loop stopped by fatal error policy")

// ErrorPolicy decides what happens after a cycle fails. A non-nil return
// stops the loop with that error.
type ErrorPolicy interface {
	Handle(loop string, err error) error
}

// ExitPolicy terminates the process. Exit defaults to os.Exit.
type ExitPolicy struct {
	Logger *slog.Logger
	Exit   func(code int)
}

func (p ExitPolicy) Handle(loop string, err error) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("liveness loop failed, shutting down", "loop", loop, "err", err)

	exit := p.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(1)

	return fmt.Errorf("%s: %w: %w", loop, ErrFatal, err)
}

// ContinuePolicy logs and lets the loop carry on with its next cycle.
type ContinuePolicy struct {
	Logger *slog.Logger
}

func (p ContinuePolicy) Handle(loop string, err error) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("liveness cycle failed, continuing", "loop", loop, "err", err)
	return nil
}

func PolicyFor(shutdownOnError bool, logger *slog.Logger) ErrorPolicy {
	if shutdownOnError {
		return ExitPolicy{Logger: logger}
	}
	return ContinuePolicy{Logger: logger}
}
