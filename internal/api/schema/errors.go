package schema

import "fmt"

// Error represents the error structure sent by the relay API.
// The optional detail carries the underlying cause of upstream failures.
type Error struct {
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

var (
	ErrInternal       = &Error{Message: "Internal error"}
	ErrNotFound       = &Error{Message: "Not found"}
	ErrSessionExpired = &Error{Message: "Session expired"}
	ErrInvalidJSON    = &Error{Message: "Invalid JSON"}
)

// ErrMissingParameter builds the error reported for a missing required parameter
func ErrMissingParameter(name string) *Error {
	return &Error{Message: fmt.Sprintf("Missing %s", name)}
}

// ErrUpstream builds the error reported for a failed upstream exchange
func ErrUpstream(message string, cause error) *Error {
	return &Error{Message: message, Detail: cause.Error()}
}
