package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/sdk"
)

// FlushResult is the JSON output of the flush command.
type FlushResult struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send every sendable event with the configured transmitter",
		Long: `Flush the queue once and wait for every transmitted event to settle.

Events whose retry time has not come yet stay queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(cmd, rootOpts)
		},
	}
}

func runFlush(cmd *cobra.Command, opts *RootOptions) error {
	before, err := countEvents(cmd, opts)
	if err != nil {
		return err
	}

	err = opts.withSDK(cmd, opts.Config, func(_ context.Context, s *sdk.SDK) error {
		if err := s.Flush(); err != nil {
			return WrapExitError(ExitFailure, "flush failed", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	after, err := countEvents(cmd, opts)
	if err != nil {
		return err
	}

	result := FlushResult{Before: before, After: after}
	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "flushed: %d pending before, %d after\n", result.Before, result.After)
	})
}
