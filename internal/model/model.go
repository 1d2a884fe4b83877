package model

import (
	"fmt"
	"strings"
)

// EventStatus is the lifecycle state of a queued event.
//
// State machine:
//
//	pending  -> claimed | deferred | failed
//	deferred -> claimed | deferred | failed
//
// claimed and failed are terminal for the automatic pipeline; a manual
// replay resets any status back to pending.
type EventStatus string

const (
	StatusPending  EventStatus = "pending"
	StatusDeferred EventStatus = "deferred"
	StatusClaimed  EventStatus = "claimed"
	StatusFailed   EventStatus = "failed"
)

// EventType classifies the remote change notification.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ResolveEventType normalizes a remote event type string.
// The remote API is not trusted to be consistent about casing.
func ResolveEventType(raw string) (EventType, error) {
	switch EventType(strings.ToLower(strings.TrimSpace(raw))) {
	case EventCreate:
		return EventCreate, nil
	case EventUpdate:
		return EventUpdate, nil
	case EventDelete:
		return EventDelete, nil
	}
	return "", fmt.Errorf("unknown event type %q", raw)
}

// Server is a connection endpoint to one remote instance. Servers are
// configured externally and never created or destroyed by the engine.
type Server struct {
	ID     int64
	Domain string
	Token  string
	Active bool

	// Modules is the ordered set of modules synchronized from this server.
	Modules []*Module
}

// Module is one synchronized entity type on a server.
//
// LastReceivedEventID is the sync watermark: the highest remote event id
// already appended to the local event log. It only moves backwards on an
// explicit full resync, which resets it to zero and discards the module's
// events.
//
// LastProcessedEventID is the execution watermark. It is max-merged with
// each executed event's id and never lowered, so a deferred event being
// retried cannot regress it below what newer events already advanced it to.
type Module struct {
	ID                   int64
	ServerID             int64
	ConnectorName        string
	ModuleName           string
	MapperName           string
	ConfigHash           string
	ShellPath            string
	StoragePath          string
	LastReceivedEventID  int64
	LastProcessedEventID int64

	Server *Server
}

// Matches reports whether the module is addressed by the given filter,
// which may name either the resolved module name or the connector name.
func (m *Module) Matches(filter string) bool {
	if filter == "" {
		return true
	}
	return m.ModuleName == filter || m.ConnectorName == filter
}

// Excluded reports whether the module's name appears in the exclusion set.
func (m *Module) Excluded(exclude []string) bool {
	for _, name := range exclude {
		if name != "" && (name == m.ModuleName || name == m.ConnectorName) {
			return true
		}
	}
	return false
}

// Event is one remote change notification queued for local replay.
//
// EventID is the remote event id, monotonically increasing per module; it
// drives ordering and the module watermarks. ObjectID is the remote entity
// identifier and the dedup key within a sync batch.
type Event struct {
	ID       int64
	ModuleID int64

	EventID   int64
	ObjectID  string
	EventType EventType
	Status    EventStatus

	// Retries counts consecutive deferrals. NextRetry is the unix time
	// before which a deferred event is not retried. SkipUntil is the
	// deferral TTL deadline; zero means no TTL has been assigned yet.
	Retries   int
	NextRetry int64
	SkipUntil int64

	Message string

	// BeanData is an optional inline payload delivered with the event.
	// When present, execution skips the redundant remote fetch.
	BeanData []byte

	// Diagnostics of the most recent attempt, for operator inspection.
	Headers  string
	URL      string
	Response string
	Payload  string
}
