// Package mapping contains the per-entity-type importers that replay
// remote change events into the local store, and the registry resolving
// them by name from module configuration.
package mapping

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/portal"
	"github.com/syzygy-germany/crossmedia-fourallportal/internal/store"
)

// OutcomeKind classifies the result of one import attempt.
type OutcomeKind int

const (
	// OutcomeOK means the event was fully applied.
	OutcomeOK OutcomeKind = iota
	// OutcomePartial means the mapper applied what it could but flagged
	// problems. Partial application is not success: the engine defers the
	// event exactly like a recoverable failure.
	OutcomePartial
	// OutcomeRecoverable means the import could not complete for a reason
	// expected to resolve itself, typically a relation to an object whose
	// own event has not been processed yet.
	OutcomeRecoverable
	// OutcomeFatal means the event can never be applied as-is and needs
	// manual replay after correction.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomePartial:
		return "partial"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the typed result of a mapper import. The execution engine
// switches on Kind; Reason carries the diagnostic persisted on the event.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func OK() Outcome { return Outcome{Kind: OutcomeOK} }

func Partial(reason string) Outcome { return Outcome{Kind: OutcomePartial, Reason: reason} }

func Recoverable(reason string) Outcome { return Outcome{Kind: OutcomeRecoverable, Reason: reason} }

func Fatal(reason string) Outcome { return Outcome{Kind: OutcomeFatal, Reason: reason} }

func Fatalf(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: fmt.Sprintf(format, args...)}
}

// Mapper applies one remote change event to the local representation.
//
// Implementations must locate the existing local entity by the remote
// object id before deciding create vs. update, so redundant or replayed
// events never produce duplicates. A delete for an absent object is a
// silent no-op.
type Mapper interface {
	Import(ctx context.Context, data *portal.BeanResponse, event *model.Event, module *model.Module) Outcome
}

// Deps are the collaborators handed to mapper factories.
type Deps struct {
	Store       *store.Store
	Pool        *portal.Pool
	StorageRoot string
}

// Factory builds a mapper instance for one module.
type Factory func(deps Deps) Mapper

var registry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{
	factories: map[string]Factory{},
}

// Register adds a mapper factory under a name. Called from init functions;
// names are case-insensitive.
func Register(name string, factory Factory) {
	name = normalizeName(name)
	if name == "" || factory == nil {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[name] = factory
}

// Resolve builds the mapper registered under the given name.
// Resolution happens once per module at engine startup.
func Resolve(name string, deps Deps) (Mapper, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[normalizeName(name)]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no mapper registered under %q", name)
	}
	return factory(deps), nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
