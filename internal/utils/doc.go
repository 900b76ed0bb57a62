// Package utils provides small helpers shared across the application:
// file checks, named regexp groups, content type detection and
// User-Agent providers for outbound HTTP requests.
package utils
