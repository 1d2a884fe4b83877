package engine

import (
	"errors"
	"fmt"
)

// SchemaMismatchError reports that a module's remote schema fingerprint
// disagrees with the locally expected one. The module is skipped and not
// retried automatically until its configuration is corrected; syncing
// against a drifted schema would silently corrupt data.
type SchemaMismatchError struct {
	ModuleName string
	RemoteHash string
	LocalHash  string
	Phase      string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("remote config hash %q does not match local %q - skipping %s of module %q",
		e.RemoteHash, e.LocalHash, e.Phase, e.ModuleName)
}

// IsSchemaMismatch reports whether err is a schema mismatch.
// Uses errors.As to handle wrapped errors.
func IsSchemaMismatch(err error) bool {
	var sm *SchemaMismatchError
	return errors.As(err, &sm)
}

// InactiveServerError reports an event whose owning server is disabled.
// The event is left untouched for a later run.
type InactiveServerError struct {
	EventID int64
	Domain  string
}

func (e *InactiveServerError) Error() string {
	return fmt.Sprintf("event %d uses server %q which is disabled, skipping event", e.EventID, e.Domain)
}
