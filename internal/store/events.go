package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/queryir"
)

// InsertEvent persists ev and returns it with its assigned Seq.
// CreatedAt defaults to now; UpdatedAt is set to CreatedAt.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	const op = "insert event"

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	ev.UpdatedAt = ev.CreatedAt
	ev.Seq = 0

	set, err := eventAssignments(ev)
	if err != nil {
		return ev, parseError(op, err)
	}

	err = s.do(ctx, op, func() error {
		res, err := s.exec(ctx, op, queryir.Insert{Into: "events", Values: set})
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return execError(op, err)
		}
		ev.Seq = id
		return nil
	})
	if err != nil {
		ev.Seq = 0
		return ev, err
	}
	return ev, nil
}

// SelectSendable returns Queued and Retry events due at maxNextTryAt.
func (s *SQLiteStore) SelectSendable(ctx context.Context, maxNextTryAt time.Time, q SendableQuery) ([]ir.Event, error) {
	const op = "select sendable events"

	var events []ir.Event
	err := s.do(ctx, op, func() error {
		var err error
		events, err = selectRows(ctx, s, op, sendableQuery(maxNextTryAt, q), scanEvent)
		return err
	})
	return events, err
}

func sendableQuery(maxNextTryAt time.Time, q SendableQuery) queryir.Select {
	preds := []queryir.Predicate{
		queryir.In{Field: "status", Values: []ir.Value{
			ir.Int(ir.StatusQueued),
			ir.Int(ir.StatusRetry),
		}},
		queryir.AtMost{Field: "next_try_at", Value: ir.Int(encodeTime(maxNextTryAt))},
	}
	if q.Priority != nil {
		preds = append(preds, queryir.Equals{Field: "priority", Value: ir.Int(*q.Priority)})
	}

	return queryir.Select{
		From:    "events",
		Columns: eventColumns,
		Filter:  queryir.And{Predicates: preds},
		Limit:   q.Limit,
	}
}

// UpdateEvent overwrites every column of the row keyed by ev.Seq.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	const op = "update event"

	if !ev.Persisted() {
		return ev, execError(op, fmt.Errorf("event not persisted"))
	}
	ev.UpdatedAt = s.now().UTC()

	set, err := eventAssignments(ev)
	if err != nil {
		return ev, parseError(op, err)
	}

	err = s.do(ctx, op, func() error {
		res, err := s.exec(ctx, op, queryir.Update{
			Table:  "events",
			Set:    set,
			Filter: queryir.Equals{Field: "id", Value: ir.Int(ev.Seq)},
		})
		if err != nil {
			return err
		}
		return checkAffected(op, res)
	})
	return ev, err
}

// DeleteEvent removes the row keyed by ev.Seq. Deleting a missing row is
// not an error.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, ev ir.Event) error {
	return s.DeleteEvents(ctx, []ir.Event{ev})
}

// DeleteEvents removes every listed event in one statement.
func (s *SQLiteStore) DeleteEvents(ctx context.Context, evs []ir.Event) error {
	const op = "delete events"

	ids := make([]int64, 0, len(evs))
	for _, ev := range evs {
		if ev.Persisted() {
			ids = append(ids, ev.Seq)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	return s.do(ctx, op, func() error {
		_, err := s.exec(ctx, op, queryir.Delete{From: "events", Filter: queryir.IDs(ids)})
		return err
	})
}

// ListEvents returns every stored event, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]ir.Event, error) {
	const op = "list events"

	var events []ir.Event
	err := s.do(ctx, op, func() error {
		var err error
		events, err = selectRows(ctx, s, op, queryir.Select{From: "events", Columns: eventColumns}, scanEvent)
		return err
	})
	return events, err
}
