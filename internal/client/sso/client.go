package sso

//go:generate $MOCKGEN -source=client.go -destination=mocks/client_mock.go

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oshokin/sso-keeper/internal/config"
	http_transport "github.com/oshokin/sso-keeper/internal/transport/http"
)

// Client defines the backend calls used by the session manager.
type Client interface {
	// IssueToken requests a signature from the issuance endpoint and returns the response body.
	IssueToken(ctx context.Context) (string, error)
	// AcknowledgeRefresh tells the backend that authorization is the session credential.
	AcknowledgeRefresh(ctx context.Context, authorization string) error
	// SignOut ends the backend session identified by authorization.
	SignOut(ctx context.Context, authorization string) error
}

// ClientImpl implements the Client interface over HTTP.
type ClientImpl struct {
	// baseURL is the backend origin.
	baseURL string
	// tokenPath is the issuance endpoint path.
	tokenPath string
	// refreshPath is the refresh acknowledgment endpoint path.
	refreshPath string
	// signOutPath is the sign-out endpoint path.
	signOutPath string
	// httpClient is the HTTP client for making requests.
	httpClient *http.Client
}

// maxTokenBodySize bounds the issuance response body.
const maxTokenBodySize = 64 * 1024

// NewClient creates and returns a new instance of ClientImpl.
// The HTTP client logs traffic at debug level and injects the configured User-Agent.
func NewClient(cfg *config.Config) (*ClientImpl, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.ParsedRequestTimeout
	if timeout <= 0 {
		timeout = http_transport.DefaultTimeout
	}

	httpClient := &http.Client{
		Transport: http_transport.NewUserAgentInjector(
			http_transport.NewLogTransport(http.DefaultTransport, config.DefaultMaxLogLength, cfg.RefreshHeader),
			http_transport.UserAgentProviderFor(cfg.UserAgent)),
		Timeout: timeout,
	}

	return NewClientWithHTTPClient(baseURL.String(), cfg, httpClient), nil
}

// NewClientWithHTTPClient creates a ClientImpl over an existing HTTP client.
func NewClientWithHTTPClient(baseURL string, cfg *config.Config, httpClient *http.Client) *ClientImpl {
	return &ClientImpl{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		tokenPath:   pathOrDefault(cfg.TokenPath, config.DefaultTokenPath),
		refreshPath: pathOrDefault(cfg.RefreshPath, config.DefaultRefreshPath),
		signOutPath: pathOrDefault(cfg.SignOutPath, config.DefaultSignOutPath),
		httpClient:  httpClient,
	}
}

// IssueToken requests a signature from the issuance endpoint.
// Only HTTP 200 is a success; the body is returned as-is.
func (c *ClientImpl) IssueToken(ctx context.Context) (string, error) {
	response, err := c.get(ctx, c.tokenPath, "")
	if err != nil {
		return "", err
	}

	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedHTTPStatus, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxTokenBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	return string(body), nil
}

// AcknowledgeRefresh calls the refresh acknowledgment endpoint.
func (c *ClientImpl) AcknowledgeRefresh(ctx context.Context, authorization string) error {
	return c.callAuthorized(ctx, c.refreshPath, authorization)
}

// SignOut calls the sign-out endpoint.
func (c *ClientImpl) SignOut(ctx context.Context, authorization string) error {
	return c.callAuthorized(ctx, c.signOutPath, authorization)
}

func (c *ClientImpl) callAuthorized(ctx context.Context, path, authorization string) error {
	if authorization == "" {
		return ErrEmptyAuthorization
	}

	response, err := c.get(ctx, path, authorization)
	if err != nil {
		return err
	}

	defer response.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, response.Body) //nolint:errcheck // Nothing useful to do on failure.

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", ErrUnexpectedHTTPStatus, response.StatusCode)
	}

	return nil
}

func (c *ClientImpl) get(ctx context.Context, path, authorization string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}

	if authorization != "" {
		request.Header.Set(http_transport.AuthorizationHeader, authorization)
	}

	return c.httpClient.Do(request)
}

func pathOrDefault(path, fallback string) string {
	if path == "" {
		return fallback
	}

	return path
}
