package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/sdk"
	"github.com/roach88/beacon/internal/trigger"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Event     string
	Filter    string
	Data      string
	ExpiresIn time.Duration
}

// ScheduleResult is the JSON output of the schedule command.
type ScheduleResult struct {
	ID        int64     `json:"id"`
	Event     string    `json:"event"`
	Filter    string    `json:"filter,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a payload for delivery on a matching event",
		Long: `Store a data payload that is delivered once, the first time a logged event
with the given name matches the filter.

The filter is compiled before the payload is stored, so a malformed filter
is rejected here rather than discarded at match time.

Examples:
  beacon schedule --event purchase --data coupon \
    --filter '{"event.properties.item_name":{"in":["iPhone","iPad"]}}'
  beacon schedule --event signup --data welcome --expires-in 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "triggering event name (required)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "JSON filter expression")
	cmd.Flags().StringVar(&opts.Data, "data", "", "payload data")
	cmd.Flags().DurationVar(&opts.ExpiresIn, "expires-in", 0, "discard the payload after this long (0 never expires)")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func runSchedule(cmd *cobra.Command, opts *ScheduleOptions) error {
	out := opts.formatter(cmd)

	payload := ir.DataPayload{
		Data:    []byte(opts.Data),
		Trigger: ir.OnEvent(opts.Event, nil),
	}
	if opts.Filter != "" {
		payload.Trigger.Event.Filters = json.RawMessage(opts.Filter)
	}
	if opts.ExpiresIn < 0 {
		return NewExitError(ExitCommandError, "--expires-in must not be negative")
	}
	if opts.ExpiresIn > 0 {
		payload.ExpiresAt = time.Now().UTC().Add(opts.ExpiresIn)
	}

	// Scheduling never transmits.
	cfg := opts.Config
	cfg.Transmitter = config.TransmitterConfig{Kind: config.TransmitterNone}

	var saved ir.DataPayload
	err := opts.withSDK(cmd, cfg, func(ctx context.Context, s *sdk.SDK) error {
		if opts.Filter != "" {
			if _, err := s.Cache().Get([]byte(opts.Filter)); err != nil {
				_ = out.Error(CodeInvalidFilter, err.Error(), nil)
				return WrapExitError(ExitCommandError, "invalid filter", err)
			}
		}

		var err error
		saved, err = s.Schedule(ctx, payload)
		if errors.Is(err, trigger.ErrInvalidPayload) {
			_ = out.Error(CodeInvalidPayload, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid payload", err)
		}
		if err == nil && !saved.Persisted() {
			return NewExitError(ExitFailure, "payload not stored (see log)")
		}
		return err
	})
	if err != nil {
		return err
	}

	result := ScheduleResult{
		ID:        saved.ID,
		Event:     saved.Trigger.Event.Name,
		Filter:    string(saved.Trigger.Event.Filters),
		ExpiresAt: saved.ExpiresAt,
	}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "scheduled payload %d on %s\n", result.ID, result.Event)
		if result.Filter != "" {
			fmt.Fprintf(w, "  filter: %s\n", result.Filter)
		}
		if !result.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "  expires: %s\n", result.ExpiresAt.Format(time.RFC3339))
		}
	})
}
