// Package model defines the domain types shared between the sync engine,
// the store and the mapping layer: servers, modules and queued events.
package model
