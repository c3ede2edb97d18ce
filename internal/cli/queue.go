package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/store"
)

// QueueEvent is one pending event in the queue listing.
type QueueEvent struct {
	Seq         int64         `json:"seq"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	Priority    string        `json:"priority"`
	NextRetryAt time.Time     `json:"next_retry_at,omitzero"`
	Properties  ir.Properties `json:"properties,omitempty"`
}

// QueuePayload is one scheduled payload in the queue listing.
type QueuePayload struct {
	ID        int64     `json:"id"`
	Trigger   string    `json:"trigger"`
	Event     string    `json:"event,omitempty"`
	Filter    string    `json:"filter,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Size      int       `json:"size"`
}

// QueueResult is the JSON output of the queue command.
type QueueResult struct {
	Events   []QueueEvent   `json:"events"`
	Payloads []QueuePayload `json:"payloads"`
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List pending events and scheduled payloads",
		Long:  `List the contents of the database without flushing or matching anything.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(cmd, rootOpts)
		},
	}
}

func openStore(opts *RootOptions) (*store.SQLiteStore, error) {
	st, err := store.Open(opts.Config.Database, store.WithLogger(opts.Logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func countEvents(cmd *cobra.Command, opts *RootOptions) (int, error) {
	st, err := openStore(opts)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	events, err := st.ListEvents(commandContext(cmd))
	if err != nil {
		return 0, WrapExitError(ExitFailure, "failed to list events", err)
	}
	return len(events), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runQueue(cmd *cobra.Command, opts *RootOptions) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	events, err := st.ListEvents(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list events", err)
	}
	payloads, err := st.ListPayloads(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list payloads", err)
	}

	result := QueueResult{
		Events:   make([]QueueEvent, len(events)),
		Payloads: make([]QueuePayload, len(payloads)),
	}
	for i, ev := range events {
		result.Events[i] = QueueEvent{
			Seq:         ev.Seq,
			Name:        ev.Name,
			Status:      ev.Status.String(),
			Priority:    ev.Priority.String(),
			NextRetryAt: ev.NextRetryAt,
			Properties:  ev.Properties,
		}
	}
	for i, p := range payloads {
		qp := QueuePayload{
			ID:        p.ID,
			Trigger:   p.Trigger.Kind.String(),
			ExpiresAt: p.ExpiresAt,
			Size:      len(p.Data),
		}
		if et, ok := p.Trigger.EventTrigger(); ok {
			qp.Event = et.Name
			qp.Filter = string(et.Filters)
		}
		result.Payloads[i] = qp
	}

	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		writeQueueText(w, result)
	})
}

func writeQueueText(w io.Writer, result QueueResult) {
	fmt.Fprintf(w, "Events (%d)\n", len(result.Events))
	if len(result.Events) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  SEQ\tNAME\tSTATUS\tPRIORITY\tNEXT RETRY")
		for _, ev := range result.Events {
			next := "-"
			if !ev.NextRetryAt.IsZero() {
				next = ev.NextRetryAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", ev.Seq, ev.Name, ev.Status, ev.Priority, next)
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "Payloads (%d)\n", len(result.Payloads))
	if len(result.Payloads) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  ID\tTRIGGER\tEVENT\tFILTER\tEXPIRES")
		for _, p := range result.Payloads {
			expires := "-"
			if !p.ExpiresAt.IsZero() {
				expires = p.ExpiresAt.Format(time.RFC3339)
			}
			filter := p.Filter
			if filter == "" {
				filter = "-"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", p.ID, p.Trigger, p.Event, filter, expires)
		}
		tw.Flush()
	}
}
