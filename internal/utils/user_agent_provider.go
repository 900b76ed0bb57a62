package utils

//go:generate $MOCKGEN -source=user_agent_provider.go -destination=mocks/user_agent_provider_mock.go

import "strings"

// UserAgentProvider is an interface that defines a method for retrieving a User-Agent string.
type UserAgentProvider interface {
	// GetUserAgent returns a User-Agent string.
	GetUserAgent() string
}

// SimpleUserAgentProvider returns a fixed User-Agent string.
type SimpleUserAgentProvider struct {
	// userAgent is the User-Agent string to return.
	userAgent string
}

// NewSimpleUserAgentProvider creates and returns a new instance of SimpleUserAgentProvider.
func NewSimpleUserAgentProvider(userAgent string) UserAgentProvider {
	return &SimpleUserAgentProvider{userAgent: userAgent}
}

// GetUserAgent returns a User-Agent string.
func (p *SimpleUserAgentProvider) GetUserAgent() string {
	return p.userAgent
}

// ProductUserAgentProvider appends a product token ("name/version") to a base User-Agent.
type ProductUserAgentProvider struct {
	userAgent string
}

// NewProductUserAgentProvider creates a provider returning "<base> <product>/<version>".
// Empty parts are omitted.
func NewProductUserAgentProvider(base, product, version string) UserAgentProvider {
	token := product
	if product != "" && version != "" {
		token += "/" + version
	}

	parts := make([]string, 0, 2)

	for _, part := range []string{strings.TrimSpace(base), token} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return &ProductUserAgentProvider{userAgent: strings.Join(parts, " ")}
}

// GetUserAgent returns a User-Agent string.
func (p *ProductUserAgentProvider) GetUserAgent() string {
	return p.userAgent
}
