package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/sdk"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Props    []string
	Context  []string
	Priority string
	Local    bool
	NoFlush  bool
}

// LogResult is the JSON output of the log command.
type LogResult struct {
	Name     string `json:"name"`
	Scope    string `json:"scope"`
	Priority string `json:"priority"`
	Flushed  bool   `json:"flushed"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <name>",
		Short: "Log one event",
		Long: `Log one event into the queue and flush it with the configured transmitter.

Property values are parsed as JSON scalars when possible (42, 1.5, true,
"quoted") and kept as strings otherwise.

Examples:
  beacon log purchase --prop item_name=iPhone --prop price=999
  beacon log screen_view --local
  beacon log app_open --priority high --no-flush`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Props, "prop", nil, "event property key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Context, "context", nil, "context key=value, never visible to filters (repeatable)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "normal", "event priority (normal|high)")
	cmd.Flags().BoolVar(&opts.Local, "local", false, "local event: never persisted or transmitted")
	cmd.Flags().BoolVar(&opts.NoFlush, "no-flush", false, "queue without flushing")

	return cmd
}

func runLog(cmd *cobra.Command, opts *LogOptions, name string) error {
	out := opts.formatter(cmd)

	ev, err := buildEvent(name, opts.Props, opts.Context, opts.Priority)
	if err != nil {
		_ = out.Error(CodeInvalidEvent, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid event", err)
	}
	if opts.Local {
		ev.Scope = ir.ScopeLocal
	}

	var logOpts []engine.LogOption
	if opts.NoFlush {
		logOpts = append(logOpts, engine.WithoutFlush())
	}

	err = opts.withSDK(cmd, opts.Config, func(_ context.Context, s *sdk.SDK) error {
		if err := s.Log(ev, logOpts...); err != nil {
			_ = out.Error(CodeInvalidEvent, err.Error(), nil)
			return WrapExitError(ExitFailure, "event rejected", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	result := LogResult{
		Name:     ev.Name,
		Scope:    ev.Scope.String(),
		Priority: ev.Priority.String(),
		Flushed:  !opts.NoFlush && !opts.Local,
	}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "logged %s (%s, %s)\n", result.Name, result.Scope, result.Priority)
	})
}

func buildEvent(name string, props, ctxProps []string, priority string) (ir.Event, error) {
	p, err := parseProps(props)
	if err != nil {
		return ir.Event{}, fmt.Errorf("--prop: %w", err)
	}
	c, err := parseProps(ctxProps)
	if err != nil {
		return ir.Event{}, fmt.Errorf("--context: %w", err)
	}
	prio, err := ir.ParsePriority(priority)
	if err != nil {
		return ir.Event{}, err
	}

	ev := ir.NewEvent(name, p)
	ev.Context = c
	ev.Priority = prio
	if err := ev.Validate(); err != nil {
		return ir.Event{}, err
	}
	return ev, nil
}

// parseProps parses key=value pairs.
func parseProps(pairs []string) (ir.Properties, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(ir.Properties, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		props[key] = parseScalar(raw)
	}
	return props, nil
}

// parseScalar reads raw as a JSON scalar, falling back to a string.
func parseScalar(raw string) ir.Value {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return ir.String(raw)
	}
	val, err := ir.FromAny(v)
	if err != nil {
		return ir.String(raw)
	}
	return val
}

// isInvalidEvent reports whether err rejects the event itself.
func isInvalidEvent(err error) bool {
	return errors.Is(err, ir.ErrInvalidEvent) || errors.Is(err, ir.ErrUnsupportedValue)
}
