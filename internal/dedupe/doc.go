// Package dedupe tracks recently processed gateway event IDs in a TTL window
// so redelivered events are dropped instead of reprocessed.
package dedupe
