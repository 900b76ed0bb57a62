package sso

import "errors"

var (
	// ErrUnexpectedHTTPStatus indicates an unexpected HTTP status code was received.
	ErrUnexpectedHTTPStatus = errors.New("unexpected HTTP status")
	// ErrEmptyAuthorization indicates that a call requiring a credential was made without one.
	ErrEmptyAuthorization = errors.New("authorization value cannot be empty")
)
