// Package session keeps per visitor state between requests. A Store loads a
// Session at the start of a request and saves it again when it was modified.
package session

import "context"

type Store interface {
	// Load returns ErrSessionNotFound for unknown or expired ids.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
