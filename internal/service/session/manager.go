package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/sso-keeper/internal/client/sso"
	"github.com/oshokin/sso-keeper/internal/config"
	"github.com/oshokin/sso-keeper/internal/logger"
	"github.com/oshokin/sso-keeper/internal/metrics"
	"github.com/oshokin/sso-keeper/internal/navigation"
	"github.com/oshokin/sso-keeper/internal/storage"
	"github.com/oshokin/sso-keeper/internal/token"
)

const (
	// ClientTokenKey is the storage key of the client slot.
	ClientTokenKey = "accessToken"
	// ServerTokenKey is the storage key of the server-acknowledged slot.
	ServerTokenKey = "serverToken"

	// rootLocation is where the callback sends the page after consuming it.
	rootLocation = "/"
	// callbackTokenParam is the query parameter carrying the callback token.
	callbackTokenParam = "token"
	// loggerName names the manager's log entries.
	loggerName = "session"
)

// ErrStorage wraps failures of the session store.
var ErrStorage = errors.New("session storage failure")

// Manager acquires, validates, refreshes and invalidates the SSO session token.
type Manager struct {
	// mu serializes check-and-write sections on the slots.
	mu sync.Mutex
	// store holds both slots.
	store storage.Store
	// client performs backend calls.
	client sso.Client
	// navigator reads and changes the page location.
	navigator navigation.Navigator
	// parser memoizes token parsing.
	parser *token.Parser
	// recorder counts calls and transitions.
	recorder *metrics.Recorder
	// callbackPath is the SSO callback path.
	callbackPath string
	// refreshHeader is the response header carrying refreshed signatures.
	refreshHeader string
	// now returns the current instant.
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithParser sets a caching parser.
func WithParser(parser *token.Parser) Option {
	return func(m *Manager) {
		m.parser = parser
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithClock replaces the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithCallbackPath overrides the SSO callback path.
func WithCallbackPath(path string) Option {
	return func(m *Manager) {
		if path != "" {
			m.callbackPath = path
		}
	}
}

// WithRefreshHeader overrides the refresh response header name.
func WithRefreshHeader(header string) Option {
	return func(m *Manager) {
		if header != "" {
			m.refreshHeader = header
		}
	}
}

// NewManager creates a Manager over the given collaborators.
func NewManager(
	store storage.Store,
	client sso.Client,
	navigator navigation.Navigator,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:         store,
		client:        client,
		navigator:     navigator,
		callbackPath:  config.DefaultCallbackPath,
		refreshHeader: config.DefaultRefreshHeader,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// GetAccessToken returns the current usable authorization value, bootstrapping
// a session when needed. An empty string means the caller is not authenticated.
// Only storage failures and malformed stored tokens are returned as errors.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	ctx = logger.WithName(ctx, loggerName)

	if location, ok := m.callbackLocation(); ok {
		return m.consumeCallback(ctx, location)
	}

	clientToken, err := m.slot(ctx, ClientTokenKey)
	if err != nil {
		return "", err
	}

	if clientToken == "" {
		return m.issue(ctx)
	}

	expired, err := m.isTokenExpired(ctx, clientToken)
	if err != nil {
		return "", err
	}

	if !expired {
		return clientToken, nil
	}

	logger.Info(ctx, "Session token has expired, signing out")
	m.recorder.ObserveTransition(metrics.OperationExpiry)

	return "", m.clear(ctx, false)
}

// SetAccessToken adopts an externally supplied, scheme-prefixed token.
// Without an existing session the token is stored and the page is redirected
// to the callback path; the returned Outcome is then a redirect and the caller
// must not continue. Otherwise the client slot is overwritten.
func (m *Manager) SetAccessToken(ctx context.Context, rawToken string) (Outcome, error) {
	ctx = logger.WithName(ctx, loggerName)

	decoded := decodeToken(ctx, rawToken)
	if decoded == "" {
		return completed(), token.ErrMissingToken
	}

	m.mu.Lock()

	existing, err := m.slot(ctx, ClientTokenKey)
	if err == nil {
		err = m.store.Set(ctx, ClientTokenKey, decoded)
	}

	m.mu.Unlock()

	if err != nil {
		return completed(), wrapStorageError(err)
	}

	if existing != "" {
		logger.Debug(ctx, "Client token was replaced")

		return completed(), nil
	}

	location := m.callbackPath + "?" + callbackTokenParam + "=" + url.QueryEscape(stripAnyScheme(decoded))

	logger.Debugf(ctx, "Starting SSO handshake, redirecting to %s", m.callbackPath)
	m.navigator.Assign(location)

	return redirect(location), nil
}

// RefreshAccessTokenFromHeader reconciles the slots with a backend response.
// It returns the newly adopted token, or an empty string when nothing changed.
func (m *Manager) RefreshAccessTokenFromHeader(ctx context.Context, header http.Header) (string, error) {
	ctx = logger.WithName(ctx, loggerName)

	if value := headerValue(header, m.refreshHeader); value != "" {
		signature, ok := token.UnwrapRefresh(value)
		if !ok {
			logger.Warnf(ctx, "%s header has no token=\"...\",refresh segment, using the raw value", m.refreshHeader)
		}

		candidate := token.WithScheme(token.SchemeSharedAccessSignature, signature)

		changed, err := m.replaceClientToken(ctx, candidate)
		if err != nil {
			return "", err
		}

		if changed {
			m.recorder.ObserveTransition(metrics.OperationHeaderRefresh)
			logger.Debug(ctx, "Client token was replaced from the refresh header")

			if err = m.acknowledge(ctx, candidate); err != nil {
				return "", err
			}

			return candidate, nil
		}
	}

	serverToken, err := m.slot(ctx, ServerTokenKey)
	if err != nil || serverToken != "" {
		return "", err
	}

	clientToken, err := m.slot(ctx, ClientTokenKey)
	if err != nil || clientToken == "" {
		return "", err
	}

	expired, err := m.isTokenExpired(ctx, clientToken)
	if err != nil {
		return "", err
	}

	if expired {
		m.recorder.ObserveTransition(metrics.OperationExpiry)

		return "", m.clear(ctx, true)
	}

	return "", m.acknowledge(ctx, clientToken)
}

// ClearAccessToken removes the client token and, unless clientOnly is set,
// signs out on the backend with it. The server slot is removed only after a
// successful sign-out. Sign-out failures are logged, not returned.
func (m *Manager) ClearAccessToken(ctx context.Context, clientOnly bool) error {
	return m.clear(logger.WithName(ctx, loggerName), clientOnly)
}

func (m *Manager) clear(ctx context.Context, clientOnly bool) error {
	m.mu.Lock()

	clientToken, err := m.slot(ctx, ClientTokenKey)
	if err == nil && clientToken != "" {
		err = m.store.Remove(ctx, ClientTokenKey)
	}

	m.mu.Unlock()

	if err != nil {
		return wrapStorageError(err)
	}

	if clientOnly || clientToken == "" {
		return nil
	}

	err = m.client.SignOut(ctx, clientToken)
	m.recorder.ObserveCall(metrics.OperationSignOut, err)

	if err != nil {
		logger.Errorf(ctx, "Failed to sign out: %v", err)

		return nil
	}

	m.mu.Lock()
	err = m.store.Remove(ctx, ServerTokenKey)
	m.mu.Unlock()

	if err != nil {
		return wrapStorageError(err)
	}

	logger.Debug(ctx, "Signed out")

	return nil
}

// IsAuthenticated reports whether GetAccessToken yields a token.
// Side effects of GetAccessToken apply.
func (m *Manager) IsAuthenticated(ctx context.Context) (bool, error) {
	accessToken, err := m.GetAccessToken(ctx)
	if err != nil {
		return false, err
	}

	return accessToken != "", nil
}

// ParseAccessToken parses a scheme-prefixed token.
func (m *Manager) ParseAccessToken(ctx context.Context, rawToken string) (*token.Token, error) {
	if m.parser == nil {
		return token.Parse(rawToken)
	}

	return m.parser.Parse(ctx, rawToken)
}

// Inspect returns both slots and the derived state without side effects.
func (m *Manager) Inspect(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clientToken, err := m.slot(ctx, ClientTokenKey)
	if err != nil {
		return Snapshot{}, err
	}

	serverToken, err := m.slot(ctx, ServerTokenKey)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		State:       stateOf(clientToken, serverToken),
		ClientToken: clientToken,
		ServerToken: serverToken,
	}, nil
}

func (m *Manager) isTokenExpired(ctx context.Context, rawToken string) (bool, error) {
	parsed, err := m.ParseAccessToken(ctx, rawToken)
	if err != nil {
		return false, err
	}

	return parsed.IsExpired(m.now()), nil
}

// callbackLocation returns the current location when it is the SSO callback.
func (m *Manager) callbackLocation() (*url.URL, bool) {
	location, err := url.Parse(m.navigator.Location())
	if err != nil || !strings.HasPrefix(location.Path, m.callbackPath) {
		return nil, false
	}

	return location, true
}

func (m *Manager) consumeCallback(ctx context.Context, location *url.URL) (string, error) {
	var accessToken string

	if value := callbackToken(location.RawQuery); value != "" {
		accessToken = token.WithScheme(token.SchemeSharedAccessSignature, decodeToken(ctx, value))

		m.mu.Lock()
		err := m.store.Set(ctx, ClientTokenKey, accessToken)
		m.mu.Unlock()

		if err != nil {
			return "", wrapStorageError(err)
		}

		m.recorder.ObserveTransition(metrics.OperationCallback)
		logger.Debug(ctx, "Client token was taken from the SSO callback")
	} else {
		logger.Warnf(ctx, "SSO callback %s carries no token", location.Path)
	}

	m.navigator.Assign(rootLocation)

	return accessToken, nil
}

// issue bootstraps both slots from the issuance endpoint.
// Issuance failures leave the session unauthenticated.
func (m *Manager) issue(ctx context.Context) (string, error) {
	body, err := m.client.IssueToken(ctx)
	if err == nil && strings.TrimSpace(body) == "" {
		err = errEmptyIssuedToken
	}

	m.recorder.ObserveCall(metrics.OperationIssue, err)

	if err != nil {
		logger.Errorf(ctx, "Failed to issue access token: %v", err)

		return "", nil
	}

	accessToken := token.WithScheme(token.SchemeSharedAccessSignature, strings.TrimSpace(body))
	mutation := storage.NewMutation().
		WithSet(ClientTokenKey, accessToken).
		WithSet(ServerTokenKey, accessToken)

	m.mu.Lock()
	err = m.store.Apply(ctx, mutation)
	m.mu.Unlock()

	if err != nil {
		return "", wrapStorageError(err)
	}

	logger.Debug(ctx, "Session was issued by the backend")

	return accessToken, nil
}

// replaceClientToken writes candidate when it differs from the client slot.
func (m *Manager) replaceClientToken(ctx context.Context, candidate string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.slot(ctx, ClientTokenKey)
	if err != nil {
		return false, err
	}

	if current == candidate {
		return false, nil
	}

	if err = m.store.Set(ctx, ClientTokenKey, candidate); err != nil {
		return false, wrapStorageError(err)
	}

	return true, nil
}

// acknowledge calls the refresh endpoint and records accessToken as the
// server token on success. Call failures are logged only.
func (m *Manager) acknowledge(ctx context.Context, accessToken string) error {
	err := m.client.AcknowledgeRefresh(ctx, accessToken)
	m.recorder.ObserveCall(metrics.OperationAcknowledge, err)

	if err != nil {
		logger.Errorf(ctx, "Failed to acknowledge session refresh: %v", err)

		return nil
	}

	m.mu.Lock()
	err = m.store.Set(ctx, ServerTokenKey, accessToken)
	m.mu.Unlock()

	if err != nil {
		return wrapStorageError(err)
	}

	logger.Debug(ctx, "Session was acknowledged by the backend")

	return nil
}

// slot returns the value under key, or an empty string when it is absent.
func (m *Manager) slot(ctx context.Context, key string) (string, error) {
	value, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return "", wrapStorageError(err)
	}

	if !ok {
		return "", nil
	}

	return value, nil
}

var errEmptyIssuedToken = errors.New("issuance endpoint returned an empty token")

// headerValue returns the first value of name, matching keys case-insensitively.
func headerValue(header http.Header, name string) string {
	if value := header.Get(name); value != "" {
		return value
	}

	for key, values := range header {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}

	return ""
}

// callbackToken returns everything after the token parameter name, so that
// unescaped '&' separators inside a signature survive.
func callbackToken(rawQuery string) string {
	marker := callbackTokenParam + "="

	if value, ok := strings.CutPrefix(rawQuery, marker); ok {
		return value
	}

	if _, value, ok := strings.Cut(rawQuery, "&"+marker); ok {
		return value
	}

	return ""
}

// decodeToken percent-decodes value, keeping it as-is when it is not valid encoding.
// '+' is kept literally since signatures are base64.
func decodeToken(ctx context.Context, value string) string {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		logger.Warnf(ctx, "Token is not valid percent-encoding, using it as-is: %v", err)

		return value
	}

	return decoded
}

func stripAnyScheme(rawToken string) string {
	for _, scheme := range []token.Scheme{token.SchemeBearer, token.SchemeSharedAccessSignature} {
		if stripped, ok := strings.CutPrefix(rawToken, scheme.Prefix()); ok {
			return stripped
		}
	}

	return rawToken
}

func wrapStorageError(err error) error {
	if errors.Is(err, ErrStorage) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrStorage, err)
}
