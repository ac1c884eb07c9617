package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// errInterrupted signals that a subcommand stopped because of
// SIGINT/SIGTERM rather than an error, so Execute can map it to exit
// code 130 instead of 1.
var errInterrupted = errors.New("interrupted")

// signalContext returns a context cancelled on SIGINT/SIGTERM, alongside
// a function that turns a context.Canceled caused by that signal into
// errInterrupted (and passes any other error through unchanged).
func signalContext() (context.Context, func(err error) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, func(err error) error {
		defer stop()
		if err != nil && ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}
}

func isInterrupt(err error) bool {
	return errors.Is(err, errInterrupted)
}
