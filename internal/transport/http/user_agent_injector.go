package http

import (
	"net/http"

	"github.com/oshokin/sso-keeper/internal/utils"
	"github.com/oshokin/sso-keeper/internal/version"
)

// UserAgentInjector is a custom http.RoundTripper that injects a User-Agent header into HTTP requests.
// It wraps another http.RoundTripper and ensures that a User-Agent header is present in every request.
type UserAgentInjector struct {
	// next is the underlying HTTP round tripper.
	next http.RoundTripper
	// userAgentProvider provides the User-Agent string to inject.
	userAgentProvider utils.UserAgentProvider
}

// userAgentHeader is the HTTP header name for User-Agent.
const userAgentHeader = "User-Agent"

// NewUserAgentInjector creates and returns a new instance of UserAgentInjector.
// It takes an underlying http.RoundTripper and a UserAgentProvider to supply the User-Agent string.
func NewUserAgentInjector(next http.RoundTripper, userAgentProvider utils.UserAgentProvider) http.RoundTripper {
	return &UserAgentInjector{
		next:              next,
		userAgentProvider: userAgentProvider,
	}
}

// RoundTrip executes a single HTTP transaction and injects a User-Agent header if it is missing.
// It implements the http.RoundTripper interface.
func (t *UserAgentInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(userAgentHeader) == "" {
		req.Header.Set(userAgentHeader, t.userAgentProvider.GetUserAgent())
	}

	return t.next.RoundTrip(req)
}

// ProductName is the product token appended to the default User-Agent.
const ProductName = "sso-keeper"

// UserAgentProviderFor returns a provider for a configured User-Agent.
// An empty value falls back to DefaultUserAgent followed by the product token.
func UserAgentProviderFor(userAgent string) utils.UserAgentProvider {
	if userAgent != "" {
		return utils.NewSimpleUserAgentProvider(userAgent)
	}

	return utils.NewProductUserAgentProvider(DefaultUserAgent, ProductName, version.Short())
}
