package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/metrics"
	"github.com/roach88/beacon/internal/sdk"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string
}

// RunEvent is one NDJSON input line.
type RunEvent struct {
	Name       string        `json:"name"`
	Properties ir.Properties `json:"properties,omitempty"`
	Context    ir.Properties `json:"context,omitempty"`
	Priority   string        `json:"priority,omitempty"`
	Local      bool          `json:"local,omitempty"`
}

// Delivery is printed for every payload whose trigger fires.
type Delivery struct {
	Delivered int64  `json:"delivered"`
	Event     string `json:"event"`
	Data      string `json:"data"`
}

// RunResult is the JSON output of the run command.
type RunResult struct {
	Logged    int   `json:"logged"`
	Rejected  int   `json:"rejected"`
	Delivered int64 `json:"delivered"`
}

// MetricsShutdownTimeout bounds the metrics server shutdown.
const MetricsShutdownTimeout = 5 * time.Second

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log events read from stdin",
		Long: `Read newline-delimited JSON events from stdin and log each one.

Every payload delivered by a matching event is printed as a JSON line.
The command stops at end of input or on SIGINT/SIGTERM, then waits for
pending matching to settle.

Input lines look like:
  {"name":"purchase","properties":{"item_name":"iPhone"},"priority":"high"}

Examples:
  cat events.ndjson | beacon run --db ./beacon.db
  beacon run --metrics-addr :9464 < events.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")

	return cmd
}

func runEvents(cmd *cobra.Command, opts *RunOptions) error {
	out := opts.formatter(cmd)
	stdout := &lockedWriter{w: cmd.OutOrStdout()}

	addr := opts.MetricsAddr
	if addr == "" {
		addr = opts.Config.MetricsAddr
	}

	var delivered atomic.Int64
	deliver := func(ps []ir.DataPayload) {
		for _, p := range ps {
			delivered.Add(1)
			d := Delivery{Delivered: p.ID, Event: p.Trigger.Event.Name, Data: string(p.Data)}
			if err := stdout.encode(d); err != nil {
				opts.Logger.Warn("delivery not printed", "payload", p.ID, "error", err)
			}
		}
	}

	var result RunResult
	err := opts.withSDK(cmd, opts.Config, func(ctx context.Context, s *sdk.SDK) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		if addr != "" {
			serveMetrics(gctx, g, addr, opts)
		}
		g.Go(func() error {
			defer cancel()
			return readEvents(gctx, cmd.InOrStdin(), s, opts, &result)
		})
		return g.Wait()
	}, sdk.WithStdout(stdout), sdk.WithDelivery(deliver))
	if err != nil {
		return err
	}

	result.Delivered = delivered.Load()
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "logged %d events (%d rejected), delivered %d payloads\n",
			result.Logged, result.Rejected, result.Delivered)
	})
}

// serveMetrics runs an HTTP server for the metrics registry until ctx ends.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, opts *RunOptions) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(metrics.NewRegistry()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		opts.Logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "metrics server failed", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), MetricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// readEvents logs one event per input line until EOF or ctx ends.
func readEvents(ctx context.Context, in io.Reader, s *sdk.SDK, opts *RunOptions, result *RunResult) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			opts.Logger.Info("input interrupted", "line", lineNo)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			break
		}
		lineNo++
		if len(line) == 0 {
			continue
		}

		ev, err := decodeEvent(line)
		if err == nil {
			err = s.Log(ev)
		}
		switch {
		case err == nil:
			result.Logged++
		case isInvalidEvent(err) || errors.Is(err, errMalformedLine):
			result.Rejected++
			opts.Logger.Warn("event rejected", "line", lineNo, "error", err)
		default:
			return WrapExitError(ExitFailure, "failed to log event", err)
		}
	}

	select {
	case err := <-scanErr:
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read input", err)
		}
	default:
	}
	return nil
}

var errMalformedLine = errors.New("malformed input line")

func decodeEvent(line []byte) (ir.Event, error) {
	var in RunEvent
	if err := json.Unmarshal(line, &in); err != nil {
		return ir.Event{}, fmt.Errorf("%w: %v", errMalformedLine, err)
	}
	prio, err := ir.ParsePriority(in.Priority)
	if err != nil {
		return ir.Event{}, fmt.Errorf("%w: %v", errMalformedLine, err)
	}

	ev := ir.NewEvent(in.Name, in.Properties)
	ev.Context = in.Context
	ev.Priority = prio
	if in.Local {
		ev.Scope = ir.ScopeLocal
	}
	return ev, nil
}

// lockedWriter serializes writes from the transmitter and delivery callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = l.Write(append(data, '\n'))
	return err
}
