// Package sso provides a client for the backend endpoints that take part in the
// single-sign-on handshake: silent token issuance, refresh acknowledgment and
// sign-out. Every call returns an error on transport failures and on non-2xx
// statuses; deciding whether a failure matters is left to the caller.
package sso
