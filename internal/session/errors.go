// ABOUTME: Session errors
// ABOUTME: Guard failures returned by Start with the state left unchanged
package session

import "errors"

var (
	// ErrMissingInput is returned when Start lacks a source or a name
	ErrMissingInput = errors.New("session: missing source or name")

	// ErrAlreadyActive is returned when Start is called on a running session
	ErrAlreadyActive = errors.New("session: already active")
)
