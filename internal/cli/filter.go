package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/filter"
	"github.com/roach88/beacon/internal/ir"
)

// FilterOptions holds flags for the filter command.
type FilterOptions struct {
	*RootOptions
	Props string
}

// FilterResult is the JSON output of the filter command.
type FilterResult struct {
	Canonical string `json:"canonical"`
	Tree      string `json:"tree"`
	Match     *bool  `json:"match,omitempty"`
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FilterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "filter <json>",
		Short: "Compile a filter expression and optionally evaluate it",
		Long: `Compile a filter expression, print its predicate tree and, with --props,
evaluate it against an event carrying those properties.

Examples:
  beacon filter '{"event.properties.item_name":{"eq":"iPhone"}}'
  beacon filter '{"OR":[{"a":{"gt":1}},{"b":{"not_eq":"x"}}]}' --props '{"a":2}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Props, "props", "", "JSON object of event properties to evaluate against")

	return cmd
}

func runFilter(cmd *cobra.Command, opts *FilterOptions, src string) error {
	out := opts.formatter(cmd)

	var compileOpts []filter.Option
	if ops, err := filter.NewCELOperators(); err != nil {
		opts.Logger.Warn("pass-through filter operators unavailable", "error", err)
	} else {
		compileOpts = append(compileOpts, filter.WithOperators(ops))
	}

	f, err := filter.Compile([]byte(src), compileOpts...)
	if err != nil {
		var details any
		var fe *filter.FilterError
		if errors.As(err, &fe) && fe.Path != "" {
			details = map[string]string{"path": fe.Path}
		}
		_ = out.Error(CodeInvalidFilter, err.Error(), details)
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	result := FilterResult{Tree: f.String()}
	if canonical, err := ir.CanonicalizeJSON([]byte(src)); err == nil {
		result.Canonical = string(canonical)
	} else {
		result.Canonical = src
	}

	if opts.Props != "" {
		var props ir.Properties
		if err := json.Unmarshal([]byte(opts.Props), &props); err != nil {
			_ = out.Error(CodeInvalidEvent, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid --props", err)
		}
		match := f.Matches(ir.NewEvent("filter", props))
		result.Match = &match
	}

	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "canonical: %s\n", result.Canonical)
		fmt.Fprintf(w, "tree:      %s\n", result.Tree)
		if result.Match != nil {
			fmt.Fprintf(w, "match:     %t\n", *result.Match)
		}
	})
}
