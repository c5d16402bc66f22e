// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command pdfgray converts PDF documents to grayscale through a conversion
// backend, from the command line or a watched drop folder.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/pdfgray/internal/session"
	"github.com/spf13/cobra"
)

const (
	exitFailure = 1
	// exitRejected is returned when the input file never reached the backend.
	exitRejected = 2
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	baseURL    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "pdfgray",
		Short:         "Convert PDF documents to grayscale",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config file (YAML)")
	pf.StringVar(&flags.baseURL, "base-url", "", "conversion backend base URL (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newConvertCmd(flags),
		newWatchCmd(flags),
		newHistoryCmd(flags),
		newHealthCmd(flags),
		newVersionCmd(),
	)
	return root
}

func exitCode(err error) int {
	var verr *session.ValidationError
	if errors.As(err, &verr) || errors.Is(err, session.ErrNoFileSelected) {
		return exitRejected
	}
	return exitFailure
}
