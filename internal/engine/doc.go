// Package engine implements the event queue and retry controller.
//
// The controller is the single entry point for event ingestion. It persists
// remote events, notifies an observer, and hands sendable events to a
// Transmitter in batches.
//
// ARCHITECTURE:
//
// Single-Writer Task Queue:
// Every controller operation runs as a task on one serial.Queue, so the
// select, mark Sending, transmit sequence of a flush never interleaves with
// another flush or with transmitter results.
//
// Event lifecycle:
//
//	Queued --flush--> Sending --success--> deleted
//	                  Sending --retry(at)--> Retry --at elapsed, flush--> Sending
//	                  Sending --failure--> deleted
//
// Status flips to Sending before Transmit is called, so an event is never in
// two batches at once.
//
// Store errors are logged and leave the event in its last known state. A
// row stuck in Sending after a crash is reset to Queued when the controller
// starts (see recover.go).
package engine
