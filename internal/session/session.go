package session

import "github.com/qfnu-tools/jwxt-relay/internal/upstream"

// Session represents one relay-local conversation with the upstream portal.
// It exclusively owns its upstream client and the cookie jar inside it.
type Session struct {
	// ID is the opaque, unguessable identifier handed to the relay's caller
	ID string

	// Client is the cookie-bearing upstream client bound to this session
	Client *upstream.Client

	// LastUsed holds the unix nanosecond timestamp of the last successful resolve.
	// It is set on creation and refreshed on every resolve, never in between.
	LastUsed int64

	// Authenticated holds the latest login interpreter verdict.
	// It is nil until the first login attempt and is informational only;
	// the relay never enforces it on query calls.
	Authenticated *bool
}
