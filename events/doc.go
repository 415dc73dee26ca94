// Package events routes verified platform webhook deliveries to
// scope-keyed handlers, deduplicating redeliveries by delivery id.
package events
