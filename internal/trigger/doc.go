// Package trigger delivers scheduled data payloads when matching events are
// logged.
//
// For each logged event the pipeline loads the payloads whose event trigger
// names the event, runs them through an ordered chain of PayloadFilters,
// deletes every matched payload together with the mismatches a filter
// condemned, and hands the matched payloads to the delivery callback.
// Delivery is at most once: a payload is delivered only after its row was
// deleted.
package trigger
