// Package engine implements the event synchronization and idempotent
// execution pipeline.
//
// The sync phase polls the remote change-event feed per module,
// deduplicates within the batch (highest event id per object id wins),
// discards stale deferred events superseded by newer remote state, and
// appends pending events to the durable log while advancing the
// received-watermark.
//
// The execution phase drains deferred-then-pending events through the
// per-module mapper, classifying outcomes into success, deferral with
// jittered linear backoff under a hard TTL, or terminal failure. The
// processed-watermark is max-merged and never regressed. Delivery is
// at-least-once; the mappers are idempotent so redundant replay is safe.
//
// A run holds the process-wide lock for its whole duration, so all state
// is mutated by exactly one run at a time.
package engine
