package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/beacon/internal/ir"
)

// State is the readiness of a Transmitter.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the per-event result of a transmission.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeRetry
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports what happened to one event of a batch.
type Result struct {
	Seq     int64
	Outcome Outcome
	RetryAt time.Time // Only for OutcomeRetry; zero retries on the next flush
	Err     error     // Optional cause, logged
}

// Success reports that the event was accepted.
func Success(seq int64) Result {
	return Result{Seq: seq, Outcome: OutcomeSuccess}
}

// RetryAt reports a recoverable failure. The event becomes sendable again
// once at has passed.
func RetryAt(seq int64, at time.Time, err error) Result {
	return Result{Seq: seq, Outcome: OutcomeRetry, RetryAt: at, Err: err}
}

// Failure reports a permanent failure. The event is discarded.
func Failure(seq int64, err error) Result {
	return Result{Seq: seq, Outcome: OutcomeFailure, Err: err}
}

// Batch is a set of events handed to a Transmitter in one call.
type Batch struct {
	ID     string
	Events []ir.Event
}

// ReportFunc receives per-event results. It may be called from any
// goroutine, in any order, before or after Transmit returns. Results for
// events outside the batch and repeated results are ignored.
type ReportFunc func(Result)

// Transmitter sends batches of events over some wire protocol.
//
// Transmit must not block on network I/O for long: the controller calls it
// from its task queue. Every event in the batch should eventually be
// reported exactly once.
type Transmitter interface {
	Start(ctx context.Context) error
	Dispose()
	State() State
	Transmit(ctx context.Context, batch Batch, report ReportFunc)
}
