package basket

import "context"

// Subject identifies whose basket is being loaded or saved. Session-backed
// storage keys on the session id directly; database-backed storage may
// prefer an authenticated user id and fall back to the session id.
type Subject interface {
	SessionID() string
}

// Storage persists the basket's item set keyed by subject. Implementations
// live in internal/storage; the basket defines the interface it consumes.
//
// "No saved basket" must load as an empty item set, never an error. I/O
// failures propagate unchanged. Concurrent requests for the same subject
// race with last-write-wins semantics: load, mutate, save, no versioning.
type Storage interface {
	Load(ctx context.Context, sub Subject) ([]*Item, error)
	Save(ctx context.Context, sub Subject, items []*Item) error
}

// SessionID is a plain session identifier usable as a Subject.
type SessionID string

func (s SessionID) SessionID() string { return string(s) }
