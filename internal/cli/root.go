package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/sdk"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// Config is loaded in PersistentPreRunE with flag overrides applied.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// CloseTimeout bounds how long a command waits for the SDK to drain.
const CloseTimeout = 10 * time.Second

// NewRootCommand creates the root command for the beacon CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "beacon",
		Short: "beacon - event queue and data triggers",
		Long: `Log analytics events into a durable local queue, transmit them in batches,
and deliver scheduled payloads when a logged event matches their trigger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewFlushCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewFilterCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// load reads the config, applies flag overrides and configures logging.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	o.Config = cfg
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// withSDK opens the shared SDK from cfg, starts it, runs fn and closes
// the SDK after everything fn logged has settled.
func (o *RootOptions) withSDK(cmd *cobra.Command, cfg config.Config, fn func(ctx context.Context, s *sdk.SDK) error, extra ...sdk.Option) error {
	opts := append([]sdk.Option{
		sdk.WithLogger(o.Logger),
		sdk.WithStdout(cmd.OutOrStdout()),
	}, extra...)
	sdk.InitShared(cfg, opts...)

	s, err := sdk.Shared()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open sdk", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
		defer cancel()
		if err := sdk.CloseShared(ctx); err != nil {
			o.Logger.Error("sdk not closed cleanly", "error", err)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start sdk", err)
	}
	if err := fn(ctx, s); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, CloseTimeout)
	defer cancel()
	if err := s.Wait(waitCtx); err != nil {
		return WrapExitError(ExitFailure, "sdk did not settle", err)
	}
	return nil
}
