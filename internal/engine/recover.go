package engine

import (
	"context"

	"github.com/roach88/beacon/internal/ir"
)

// Crash recovery
//
// Status flips to Sending before a batch is handed to the transmitter. If
// the process stops before the results come back, those rows would never
// be selected again: SelectSendable only returns Queued and Retry.
//
// recoverSending is the first task every controller runs. At that point no
// batch of this process is in flight, so any Sending row belongs to a dead
// process and is reset to Queued. Delivery stays at-least-once: a batch
// the backend accepted right before the crash is sent again.

// recoverSending resets every Sending event to Queued.
// CRITICAL: Called only from queue tasks.
func (c *Controller) recoverSending(ctx context.Context) {
	events, err := c.store.ListEvents(ctx)
	if err != nil {
		c.logger.Error("recovery failed: list events", "error", err)
		return
	}

	var requeued int
	for _, ev := range events {
		if ev.Status != ir.StatusSending {
			continue
		}
		ev.Status = ir.StatusQueued
		if _, err := c.store.UpdateEvent(ctx, ev); err != nil {
			c.logger.Warn("event not requeued", "seq", ev.Seq, "error", err)
			continue
		}
		requeued++
	}
	if requeued > 0 {
		c.logger.Info("requeued events interrupted while sending", "events", requeued)
	}
}
