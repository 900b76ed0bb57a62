package token

import (
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oshokin/sso-keeper/internal/utils"
)

// Scheme is the authorization scheme a token is presented with.
type Scheme string

const (
	// SchemeBearer marks a JWT bearer token.
	SchemeBearer Scheme = "Bearer"
	// SchemeSharedAccessSignature marks a shared access signature.
	SchemeSharedAccessSignature Scheme = "SharedAccessSignature"
)

const (
	// sasTimestampLayout is the layout of the expiration embedded in a signature.
	sasTimestampLayout = "200601021504"
	// sasSegmentSeparator separates signature segments.
	sasSegmentSeparator = '&'
	// refreshTokenGroup is the capture group holding the inner signature.
	refreshTokenGroup = "token"
)

// refreshWrapperPattern matches token="<value>",refresh... as sent by the gateway.
//
//nolint:gochecknoglobals // Immutable, pre-compiled pattern.
var refreshWrapperPattern = regexp.MustCompile(`token="(?P<token>.*)",refresh`)

// Prefix returns the scheme marker including the trailing space.
func (s Scheme) Prefix() string {
	return string(s) + " "
}

// Token is a parsed, immutable authorization value.
type Token struct {
	// Scheme is the authorization scheme.
	Scheme Scheme
	// Raw is the scheme-prefixed value as stored.
	Raw string
	// Value is the credential without its scheme; for signatures, the unwrapped inner signature.
	Value string
	// ExpiresAt is the absolute UTC expiration instant.
	ExpiresAt time.Time
	// Wrapped reports whether a signature carried the token="...",refresh wrapper.
	Wrapped bool
}

// IsExpired reports whether the token expired strictly before now.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now.UTC())
}

// WithScheme prefixes a bare value with the scheme marker.
func WithScheme(scheme Scheme, value string) string {
	return scheme.Prefix() + value
}

// StripScheme removes the scheme marker if present.
func StripScheme(scheme Scheme, raw string) string {
	return strings.TrimPrefix(raw, scheme.Prefix())
}

// UnwrapRefresh extracts <value> from token="<value>",refresh....
// When the wrapper is absent the input is returned unchanged with ok set to false.
func UnwrapRefresh(value string) (string, bool) {
	if !utils.HasNamedGroupMatch(refreshWrapperPattern, refreshTokenGroup, value) {
		return value, false
	}

	return utils.ExtractNamedGroup(refreshWrapperPattern, refreshTokenGroup, value), true
}

// Parse dispatches on the scheme prefix and extracts the expiration instant.
func Parse(raw string) (*Token, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	var (
		result *Token
		err    error
	)

	switch {
	case strings.HasPrefix(raw, SchemeBearer.Prefix()):
		result, err = parseBearer(StripScheme(SchemeBearer, raw))
	case strings.HasPrefix(raw, SchemeSharedAccessSignature.Prefix()):
		result, err = parseSharedAccessSignature(StripScheme(SchemeSharedAccessSignature, raw))
	default:
		return nil, newFormatError("", `please use "Bearer" or "SharedAccessSignature"`)
	}

	if err != nil {
		return nil, err
	}

	result.Raw = raw

	return result, nil
}

func parseBearer(value string) (*Token, error) {
	claims := jwt.MapClaims{}

	// Signature verification belongs to the backend; only the claims are read here.
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return nil, newFormatError(SchemeBearer, err.Error())
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, newFormatError(SchemeBearer, err.Error())
	}

	if exp == nil {
		return nil, newFormatError(SchemeBearer, "exp claim is missing")
	}

	return &Token{
		Scheme:    SchemeBearer,
		Value:     value,
		ExpiresAt: exp.UTC(),
	}, nil
}

func parseSharedAccessSignature(value string) (*Token, error) {
	signature, wrapped := UnwrapRefresh(value)

	digits, ok := scanSignatureTimestamp(signature)
	if !ok {
		return nil, newFormatError(SchemeSharedAccessSignature, "expected <resource>&YYYYMMDDHHmm&<signature>")
	}

	expiresAt, err := time.ParseInLocation(sasTimestampLayout, digits, time.UTC)
	if err != nil {
		return nil, newFormatError(SchemeSharedAccessSignature, "invalid expiration "+digits)
	}

	return &Token{
		Scheme:    SchemeSharedAccessSignature,
		Value:     signature,
		ExpiresAt: expiresAt,
		Wrapped:   wrapped,
	}, nil
}

// scanSignatureTimestamp implements ^[\w-]*&(\d{12})&.
func scanSignatureTimestamp(signature string) (string, bool) {
	i := 0
	for i < len(signature) && isResourceChar(signature[i]) {
		i++
	}

	if i == len(signature) || signature[i] != sasSegmentSeparator {
		return "", false
	}

	i++
	start := i

	for i < len(signature) && signature[i] >= '0' && signature[i] <= '9' {
		i++
	}

	if i-start != len(sasTimestampLayout) || i == len(signature) || signature[i] != sasSegmentSeparator {
		return "", false
	}

	return signature[start:i], true
}

func isResourceChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}
