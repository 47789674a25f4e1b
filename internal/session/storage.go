package session

import (
	"context"
	"time"

	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
)

// Storage defines the session storage API
type Storage interface {
	// Create allocates a new session owning the given upstream client and returns it.
	// The generated identifier is cryptographically unguessable.
	Create(ctx context.Context, client *upstream.Client) (*Session, error)

	// Resolve looks up a session by its identifier.
	// Sessions whose age (now - last used) exceeds the given TTL are evicted and
	// treated as absent. A successful resolve refreshes the last-used timestamp.
	// Returns nil without an error if the session is absent or expired.
	Resolve(ctx context.Context, id string, ttl time.Duration) (*Session, error)

	// SetAuthenticated records the latest login verdict on a session.
	// A no-op if the session no longer exists.
	SetAuthenticated(ctx context.Context, id string, authenticated bool) error

	// Terminate removes a session by its identifier
	Terminate(ctx context.Context, id string) error

	// TerminateExpired removes all sessions whose age exceeds the given TTL
	TerminateExpired(ctx context.Context, ttl time.Duration) (int, error)
}
