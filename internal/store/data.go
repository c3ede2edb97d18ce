package store

import (
	"context"
	"fmt"

	"github.com/roach88/beacon/internal/ir"
	"github.com/roach88/beacon/internal/queryir"
)

// InsertPayload persists p and returns it with its assigned ID.
func (s *SQLiteStore) InsertPayload(ctx context.Context, p ir.DataPayload) (ir.DataPayload, error) {
	const op = "insert payload"

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	p.ID = 0

	set, err := payloadAssignments(p)
	if err != nil {
		return p, parseError(op, err)
	}

	err = s.do(ctx, op, func() error {
		res, err := s.exec(ctx, op, queryir.Insert{Into: "data", Values: set})
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return execError(op, err)
		}
		p.ID = id
		return nil
	})
	if err != nil {
		p.ID = 0
		return p, err
	}
	return p, nil
}

// SelectByTriggerEventName returns event-triggered payloads watching name.
func (s *SQLiteStore) SelectByTriggerEventName(ctx context.Context, name string) ([]ir.DataPayload, error) {
	const op = "select payloads by event name"

	q := queryir.Select{
		From:    "data",
		Columns: payloadColumns,
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "trigger_kind", Value: ir.Int(ir.TriggerEvent)},
			queryir.Equals{Field: "event_name", Value: ir.String(name)},
		}},
	}

	var payloads []ir.DataPayload
	err := s.do(ctx, op, func() error {
		var err error
		payloads, err = selectRows(ctx, s, op, q, scanPayload)
		return err
	})
	return payloads, err
}

// UpdatePayload overwrites every column of the row keyed by p.ID.
func (s *SQLiteStore) UpdatePayload(ctx context.Context, p ir.DataPayload) (ir.DataPayload, error) {
	const op = "update payload"

	if !p.Persisted() {
		return p, execError(op, fmt.Errorf("payload not persisted"))
	}
	p.UpdatedAt = s.now().UTC()

	set, err := payloadAssignments(p)
	if err != nil {
		return p, parseError(op, err)
	}

	err = s.do(ctx, op, func() error {
		res, err := s.exec(ctx, op, queryir.Update{
			Table:  "data",
			Set:    set,
			Filter: queryir.Equals{Field: "id", Value: ir.Int(p.ID)},
		})
		if err != nil {
			return err
		}
		return checkAffected(op, res)
	})
	return p, err
}

// DeletePayload removes the row keyed by p.ID.
func (s *SQLiteStore) DeletePayload(ctx context.Context, p ir.DataPayload) error {
	return s.DeletePayloads(ctx, []ir.DataPayload{p})
}

// DeletePayloads removes every listed payload in one statement.
func (s *SQLiteStore) DeletePayloads(ctx context.Context, ps []ir.DataPayload) error {
	const op = "delete payloads"

	ids := make([]int64, 0, len(ps))
	for _, p := range ps {
		if p.Persisted() {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	return s.do(ctx, op, func() error {
		_, err := s.exec(ctx, op, queryir.Delete{From: "data", Filter: queryir.IDs(ids)})
		return err
	})
}

// ListPayloads returns every stored payload, oldest first.
func (s *SQLiteStore) ListPayloads(ctx context.Context) ([]ir.DataPayload, error) {
	const op = "list payloads"

	var payloads []ir.DataPayload
	err := s.do(ctx, op, func() error {
		var err error
		payloads, err = selectRows(ctx, s, op, queryir.Select{From: "data", Columns: payloadColumns}, scanPayload)
		return err
	})
	return payloads, err
}
