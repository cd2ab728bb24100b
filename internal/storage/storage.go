// Package storage provides the basket persistence backends: an in-memory
// map, a Redis-backed session store, a single-row Postgres table and a
// MongoDB collection. All of them round-trip the one wire format produced
// by basket.EncodeItems.
package storage

import (
	"context"

	"github.com/opuscart/basket/internal/basket"
)

// UserProvider resolves an authenticated user for the current request.
// Database-backed storage prefers the user id over the session id so a
// basket follows the user across sessions.
type UserProvider interface {
	UserID(ctx context.Context) (string, bool)
}

// subjectID picks the storage key: the authenticated user id when a
// provider is configured and reports one, otherwise the session id.
func subjectID(ctx context.Context, users UserProvider, sub basket.Subject) string {
	if users != nil {
		if id, ok := users.UserID(ctx); ok && id != "" {
			return id
		}
	}
	return sub.SessionID()
}
