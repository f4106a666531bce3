package gateway

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionClosed   = errors.New("session closed")
)

// FriendlyError carries a stable machine code plus a message safe to show the
// caller. The cause stays server-side.
type FriendlyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *FriendlyError) Error() string { return e.Message }

func (e *FriendlyError) Unwrap() error { return e.Cause }
