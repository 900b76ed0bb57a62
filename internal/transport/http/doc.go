// Package http provides custom HTTP transport utilities:
// request/response logging, User-Agent header injection and
// session authorization that keeps the SSO token in sync with
// the refresh header returned by the backend.
package http
