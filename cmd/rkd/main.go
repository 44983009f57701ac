// Package main is the entry point for the rkd CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketdoo/rkd/internal/cmd"
	oerrors "github.com/rocketdoo/rkd/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var exitErr *oerrors.ExitError
	if errors.As(err, &exitErr) {
		// The command layer may have printed the details already.
		if !exitErr.Printed {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(oerrors.ExitCodeFromError(err))
}
