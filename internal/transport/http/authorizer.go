package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/oshokin/sso-keeper/internal/logger"
)

// TokenSource supplies the current authorization value.
type TokenSource interface {
	// GetAccessToken returns the scheme-prefixed token, or an empty string when there is no session.
	GetAccessToken(ctx context.Context) (string, error)
}

// HeaderRefresher reconciles session state with the headers of a backend response.
type HeaderRefresher interface {
	// RefreshAccessTokenFromHeader returns the newly adopted token, or an empty string.
	RefreshAccessTokenFromHeader(ctx context.Context, header http.Header) (string, error)
}

// SessionManager is the part of the session manager used by Authorizer.
type SessionManager interface {
	TokenSource
	HeaderRefresher
}

// Authorizer is a custom http.RoundTripper that authorizes outbound requests with
// the session token and feeds every response back to the session manager.
type Authorizer struct {
	// next is the underlying HTTP round tripper.
	next http.RoundTripper
	// session provides tokens and consumes refresh headers.
	session SessionManager
}

// ErrNoSession indicates that a request could not be authorized because there is no session.
var ErrNoSession = errors.New("no active session")

// NewAuthorizer creates and returns a new instance of Authorizer.
func NewAuthorizer(next http.RoundTripper, session SessionManager) http.RoundTripper {
	return &Authorizer{
		next:    next,
		session: session,
	}
}

// RoundTrip sets the Authorization header unless the caller already did,
// executes the request and reconciles the refresh header of the response.
// It implements the http.RoundTripper interface.
func (t *Authorizer) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	ctx := req.Context()

	if req.Header.Get(AuthorizationHeader) == "" {
		accessToken, err := t.session.GetAccessToken(ctx)
		if err != nil {
			return nil, err
		}

		if accessToken == "" {
			return nil, ErrNoSession
		}

		// RoundTrippers must not modify the caller's request.
		req = req.Clone(ctx)
		req.Header.Set(AuthorizationHeader, accessToken)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	refreshed, err := t.session.RefreshAccessTokenFromHeader(ctx, resp.Header)
	if err != nil {
		logger.Warnf(ctx, "Failed to reconcile refresh header: %v", err)
	} else if refreshed != "" {
		logger.Debug(ctx, "Session token was refreshed by the backend")
	}

	return resp, nil
}
