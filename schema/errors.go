package schema

import "errors"

var (
	// ErrInvalidSession indicates an invalid session identifier.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExists indicates the session id is already registered.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound indicates the session id is not registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed indicates the session has been torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrPaneNotFound indicates a requested pane could not be found.
	ErrPaneNotFound = errors.New("pane not found")
	// ErrInvalidUser indicates an invalid user identifier.
	ErrInvalidUser = errors.New("invalid user")
)
