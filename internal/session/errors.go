package session

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by ParseIngest and the Service. HTTP handlers map
// them to status codes with errors.Is.
var (
	ErrMalformedBody         = errors.New("Invalid JSON body")
	ErrMissingSessionID      = errors.New("session_id is required")
	ErrMissingContent        = errors.New("prompt or ai_prompt is required")
	ErrEnrichmentUnavailable = errors.New("no advice available")
	ErrNotFound              = errors.New("not found")
	ErrStoreWrite            = errors.New("store write failed")
)

// ValidationError is a client error with a human readable detail.
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func invalid(kind error, format string, args ...interface{}) error {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// StoreWriteError reports which write failed. It matches ErrStoreWrite
// under errors.Is and unwraps to the storage error.
type StoreWriteError struct {
	// Op is "addPrompt", "upsert", "usage" or "systemInfo".
	Op string
	// Key is the session id, or the conversation id for usage writes.
	Key string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("session: %s for %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreWriteError) Unwrap() []error { return []error{ErrStoreWrite, e.Err} }
