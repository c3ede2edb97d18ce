// Package harness runs end-to-end conformance scenarios against the SDK.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: purchase_delivers_coupon
//	description: "A matching purchase delivers the scheduled coupon once"
//	transmitter: succeed        # succeed | retry | fail | none
//	retry_after: 1m             # used by the retry transmitter
//	payloads:
//	  - label: coupon
//	    event: purchase
//	    filter: '{"event.properties.item_name":{"in":["iPhone","iPad"]}}'
//	    data: "10% off"
//	    expires_in: 1h
//	events:
//	  - name: purchase
//	    properties: { item_name: iPhone }
//	  - name: purchase
//	    advance: 2m
//	    local: true
//	assertions:
//	  - type: delivered
//	    payloads: [coupon]
//	  - type: transmitted
//	    event: purchase
//	    count: 1
//	  - type: pending_events
//	    count: 0
//	  - type: pending_payloads
//	    payloads: []
//
// # Assertion Types
//
//   - delivered: the labels delivered over the whole run, in order
//   - transmitted: how many times events named event were handed to the
//     transmitter
//   - pending_events: rows left in the events table, optionally with a status
//   - pending_payloads: labels of the payloads left in the store
//
// # Determinism
//
// Every scenario runs against a fresh in-memory SQLite database with a fake
// clock and sequential batch ids. The runner waits for the SDK to go idle
// after each step, so the trace order is stable and comparable with a
// golden file.
package harness
