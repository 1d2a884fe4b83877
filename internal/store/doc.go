// Package store implements durable persistence on SQLite.
//
// It holds three groups of state:
//
//   - the event log: remote change notifications queued for replay,
//     filterable by status/module/object id and ordered by remote event id
//   - the registry: servers and modules with their watermarks and
//     configuration fingerprints
//   - the mapped entities: the local representations written by the bean
//     mapper, correlated to the remote by a stable external id
//
// All writes go through the single lock-holding run, so the store keeps a
// single connection and relies on WAL mode only for concurrent readers.
package store
