package session

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oshokin/sso-keeper/internal/client/sso"
	mock_sso "github.com/oshokin/sso-keeper/internal/client/sso/mocks"
	"github.com/oshokin/sso-keeper/internal/metrics"
	"github.com/oshokin/sso-keeper/internal/navigation"
	mock_navigation "github.com/oshokin/sso-keeper/internal/navigation/mocks"
	"github.com/oshokin/sso-keeper/internal/storage"
	mock_storage "github.com/oshokin/sso-keeper/internal/storage/mocks"
	"github.com/oshokin/sso-keeper/internal/token"
)

const (
	appURL       = "https://app.example.com/"
	validToken   = "SharedAccessSignature id&202611301530&sig"
	otherToken   = "SharedAccessSignature id&202612010000&other"
	expiredToken = "SharedAccessSignature id&202001010000&sig"
)

var errBackend = errors.New("backend is unavailable")

// fixture bundles a manager with its collaborators.
type fixture struct {
	manager *Manager
	client  *mock_sso.MockClient
	store   *storage.MemoryStore
	browser *navigation.Browser
}

func fixedNow() time.Time {
	return time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, location string, slots map[string]string, opts ...Option) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	start, err := url.Parse(location)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	for key, value := range slots {
		require.NoError(t, store.Set(t.Context(), key, value))
	}

	client := mock_sso.NewMockClient(ctrl)
	browser := navigation.NewBrowser(start)

	opts = append([]Option{WithClock(fixedNow)}, opts...)

	return &fixture{
		manager: NewManager(store, client, browser, opts...),
		client:  client,
		store:   store,
		browser: browser,
	}
}

// TestGetAccessToken_Callback tests bootstrap from the SSO callback URL.
func TestGetAccessToken_Callback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		location string
		expected string
	}{
		{
			name:     "encoded signature",
			location: "https://app.example.com/signin-sso?token=abc%3D",
			expected: "SharedAccessSignature abc=",
		},
		{
			name:     "unescaped separators",
			location: "https://app.example.com/signin-sso?token=id&202611301530&sig",
			expected: validToken,
		},
		{
			name:     "token after another parameter",
			location: "https://app.example.com/signin-sso?lang=en&token=abc%2Bdef",
			expected: "SharedAccessSignature abc+def",
		},
		{
			name:     "plus sign is kept",
			location: "https://app.example.com/signin-sso?token=a+b",
			expected: "SharedAccessSignature a+b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, tt.location, nil)

			accessToken, err := f.manager.GetAccessToken(t.Context())
			require.NoError(t, err)

			assert.Equal(t, tt.expected, accessToken)
			assert.Equal(t, map[string]string{ClientTokenKey: tt.expected}, f.store.Snapshot())
			assert.Equal(t, appURL, f.browser.Location())
		})
	}
}

// TestGetAccessToken_CallbackWithoutToken tests that an empty callback only navigates home.
func TestGetAccessToken_CallbackWithoutToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "https://app.example.com/signin-sso?token=", map[string]string{ServerTokenKey: validToken})

	accessToken, err := f.manager.GetAccessToken(t.Context())
	require.NoError(t, err)

	assert.Empty(t, accessToken)
	assert.Equal(t, map[string]string{ServerTokenKey: validToken}, f.store.Snapshot())
	assert.Equal(t, appURL, f.browser.Location())
}

// TestGetAccessToken_Issue tests the silent bootstrap through the issuance endpoint.
func TestGetAccessToken_Issue(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	f := newFixture(t, appURL, nil, WithRecorder(metrics.NewRecorder(registry)))

	f.client.EXPECT().IssueToken(gomock.Any()).Return("sig123", nil)

	accessToken, err := f.manager.GetAccessToken(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "SharedAccessSignature sig123", accessToken)
	assert.Equal(t, map[string]string{
		ClientTokenKey: "SharedAccessSignature sig123",
		ServerTokenKey: "SharedAccessSignature sig123",
	}, f.store.Snapshot())

	count, err := testutil.GatherAndCount(registry, "sso_keeper_backend_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestGetAccessToken_IssueFailure tests that issuance failures leave the session empty.
func TestGetAccessToken_IssueFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		err  error
	}{
		{
			name: "unexpected status",
			err:  sso.ErrUnexpectedHTTPStatus,
		},
		{
			name: "transport failure",
			err:  errBackend,
		},
		{
			name: "empty body",
			body: " \n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, appURL, nil)
			f.client.EXPECT().IssueToken(gomock.Any()).Return(tt.body, tt.err)

			accessToken, err := f.manager.GetAccessToken(t.Context())
			require.NoError(t, err)

			assert.Empty(t, accessToken)
			assert.Empty(t, f.store.Snapshot())
		})
	}
}

// TestGetAccessToken_Stored tests that a valid stored token is returned unchanged.
func TestGetAccessToken_Stored(t *testing.T) {
	t.Parallel()

	parser, err := token.NewParser(4)
	require.NoError(t, err)

	f := newFixture(t, appURL, map[string]string{ClientTokenKey: validToken}, WithParser(parser))

	for range 2 {
		accessToken, err := f.manager.GetAccessToken(t.Context())
		require.NoError(t, err)
		assert.Equal(t, validToken, accessToken)
	}

	assert.Equal(t, 1, parser.Len())
}

// TestGetAccessToken_Expired tests that an expired token clears the session.
func TestGetAccessToken_Expired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, map[string]string{
		ClientTokenKey: expiredToken,
		ServerTokenKey: expiredToken,
	})

	f.client.EXPECT().SignOut(gomock.Any(), expiredToken).Return(nil)

	accessToken, err := f.manager.GetAccessToken(t.Context())
	require.NoError(t, err)

	assert.Empty(t, accessToken)
	assert.Empty(t, f.store.Snapshot())
}

// TestGetAccessToken_ExpiresAtNow tests that a token expiring exactly now is still valid.
func TestGetAccessToken_ExpiresAtNow(t *testing.T) {
	t.Parallel()

	const expiresNow = "SharedAccessSignature id&202610191200&sig"

	f := newFixture(t, appURL, map[string]string{ClientTokenKey: expiresNow})

	accessToken, err := f.manager.GetAccessToken(t.Context())
	require.NoError(t, err)
	assert.Equal(t, expiresNow, accessToken)
}

// TestGetAccessToken_Malformed tests that a malformed stored token is reported.
func TestGetAccessToken_Malformed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, map[string]string{ClientTokenKey: "Foo xyz"})

	accessToken, err := f.manager.GetAccessToken(t.Context())
	require.ErrorIs(t, err, token.ErrInvalidFormat)
	assert.Empty(t, accessToken)
	assert.Equal(t, map[string]string{ClientTokenKey: "Foo xyz"}, f.store.Snapshot())
}

// TestSetAccessToken_FirstTime tests that a new session redirects through the callback.
func TestSetAccessToken_FirstTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, nil)

	outcome, err := f.manager.SetAccessToken(t.Context(), validToken)
	require.NoError(t, err)

	assert.True(t, outcome.IsRedirect())
	assert.Equal(t, "/signin-sso?token=id%26202611301530%26sig", outcome.Location)
	assert.Equal(t, "https://app.example.com/signin-sso?token=id%26202611301530%26sig", f.browser.Location())
	assert.Equal(t, map[string]string{ClientTokenKey: validToken}, f.store.Snapshot())

	// The next page load consumes the callback.
	accessToken, err := f.manager.GetAccessToken(t.Context())
	require.NoError(t, err)

	assert.Equal(t, validToken, accessToken)
	assert.Equal(t, appURL, f.browser.Location())
}

// TestSetAccessToken_Decodes tests that percent-encoded input is stored decoded.
func TestSetAccessToken_Decodes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, nil, WithCallbackPath("/sso/callback"))

	outcome, err := f.manager.SetAccessToken(t.Context(), "SharedAccessSignature%20abc%3D")
	require.NoError(t, err)

	assert.Equal(t, "/sso/callback?token=abc%3D", outcome.Location)
	assert.Equal(t, map[string]string{ClientTokenKey: "SharedAccessSignature abc="}, f.store.Snapshot())
}

// TestSetAccessToken_Existing tests that an existing session is overwritten without navigation.
func TestSetAccessToken_Existing(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(t.Context(), ClientTokenKey, validToken))

	// No navigation is expected.
	navigator := mock_navigation.NewMockNavigator(ctrl)
	manager := NewManager(store, mock_sso.NewMockClient(ctrl), navigator, WithClock(fixedNow))

	outcome, err := manager.SetAccessToken(t.Context(), otherToken)
	require.NoError(t, err)

	assert.False(t, outcome.IsRedirect())
	assert.Equal(t, map[string]string{ClientTokenKey: otherToken}, store.Snapshot())

	_, err = manager.SetAccessToken(t.Context(), "")
	require.ErrorIs(t, err, token.ErrMissingToken)
}

// TestRefreshAccessTokenFromHeader_NewToken tests adoption of a refreshed signature.
func TestRefreshAccessTokenFromHeader_NewToken(t *testing.T) {
	t.Parallel()

	const newToken = "SharedAccessSignature newsig"

	tests := []struct {
		name           string
		headerName     string
		headerValue    string
		expected       string
		ackErr         error
		expectedServer string
	}{
		{
			name:           "wrapped value acknowledged",
			headerName:     "Ocp-Apim-Sas-Token",
			headerValue:    `token="newsig",refresh=3600`,
			expected:       newToken,
			expectedServer: newToken,
		},
		{
			name:           "header name is case insensitive",
			headerName:     "ocp-apim-sas-token",
			headerValue:    `token="newsig",refresh=3600`,
			expected:       newToken,
			expectedServer: newToken,
		},
		{
			name:           "raw value is used when unwrapped",
			headerName:     "Ocp-Apim-Sas-Token",
			headerValue:    "newsig",
			expected:       newToken,
			expectedServer: newToken,
		},
		{
			name:           "failed acknowledgment keeps server token",
			headerName:     "Ocp-Apim-Sas-Token",
			headerValue:    `token="newsig",refresh=3600`,
			expected:       newToken,
			ackErr:         errBackend,
			expectedServer: validToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, appURL, map[string]string{
				ClientTokenKey: validToken,
				ServerTokenKey: validToken,
			})

			f.client.EXPECT().AcknowledgeRefresh(gomock.Any(), tt.expected).Return(tt.ackErr)

			header := http.Header{tt.headerName: {tt.headerValue}}

			refreshed, err := f.manager.RefreshAccessTokenFromHeader(t.Context(), header)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, refreshed)
			assert.Equal(t, map[string]string{
				ClientTokenKey: tt.expected,
				ServerTokenKey: tt.expectedServer,
			}, f.store.Snapshot())
		})
	}
}

// TestRefreshAccessTokenFromHeader_Reconcile tests the lazy acknowledgment of the client token.
//
//nolint:funlen // Table of reconciliation cases.
func TestRefreshAccessTokenFromHeader_Reconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		slots    map[string]string
		header   string
		setup    func(client *mock_sso.MockClient)
		expected map[string]string
	}{
		{
			name:     "same token already acknowledged",
			slots:    map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken},
			header:   `token="id&202611301530&sig",refresh=3600`,
			expected: map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken},
		},
		{
			name:   "same token without acknowledgment",
			slots:  map[string]string{ClientTokenKey: validToken},
			header: `token="id&202611301530&sig",refresh=3600`,
			setup: func(client *mock_sso.MockClient) {
				client.EXPECT().AcknowledgeRefresh(gomock.Any(), validToken).Return(nil)
			},
			expected: map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken},
		},
		{
			name:  "no header and no acknowledgment",
			slots: map[string]string{ClientTokenKey: validToken},
			setup: func(client *mock_sso.MockClient) {
				client.EXPECT().AcknowledgeRefresh(gomock.Any(), validToken).Return(errBackend)
			},
			expected: map[string]string{ClientTokenKey: validToken},
		},
		{
			name:     "no tokens at all",
			expected: map[string]string{},
		},
		{
			name:     "expired client token is dropped locally",
			slots:    map[string]string{ClientTokenKey: expiredToken},
			expected: map[string]string{},
		},
		{
			name:     "acknowledged session without header",
			slots:    map[string]string{ClientTokenKey: expiredToken, ServerTokenKey: validToken},
			expected: map[string]string{ClientTokenKey: expiredToken, ServerTokenKey: validToken},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, appURL, tt.slots)

			if tt.setup != nil {
				tt.setup(f.client)
			}

			header := http.Header{}
			if tt.header != "" {
				header.Set("Ocp-Apim-Sas-Token", tt.header)
			}

			refreshed, err := f.manager.RefreshAccessTokenFromHeader(t.Context(), header)
			require.NoError(t, err)

			assert.Empty(t, refreshed)
			assert.Equal(t, tt.expected, f.store.Snapshot())
		})
	}
}

// TestRefreshAccessTokenFromHeader_Malformed tests that a malformed unacknowledged token is reported.
func TestRefreshAccessTokenFromHeader_Malformed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, map[string]string{ClientTokenKey: "SharedAccessSignature newsig"})

	_, err := f.manager.RefreshAccessTokenFromHeader(t.Context(), http.Header{})
	require.ErrorIs(t, err, token.ErrInvalidFormat)
}

// TestClearAccessToken tests local and backend sign-out.
func TestClearAccessToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		slots      map[string]string
		clientOnly bool
		signOut    bool
		signOutErr error
		expected   map[string]string
	}{
		{
			name:     "full sign-out",
			slots:    map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken},
			signOut:  true,
			expected: map[string]string{},
		},
		{
			name:       "client only",
			slots:      map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken},
			clientOnly: true,
			expected:   map[string]string{ServerTokenKey: validToken},
		},
		{
			name:       "failed sign-out keeps server token",
			slots:      map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken},
			signOut:    true,
			signOutErr: errBackend,
			expected:   map[string]string{ServerTokenKey: validToken},
		},
		{
			name:     "nothing to clear",
			slots:    map[string]string{ServerTokenKey: validToken},
			expected: map[string]string{ServerTokenKey: validToken},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, appURL, tt.slots)

			if tt.signOut {
				f.client.EXPECT().SignOut(gomock.Any(), validToken).Return(tt.signOutErr)
			}

			require.NoError(t, f.manager.ClearAccessToken(t.Context(), tt.clientOnly))
			assert.Equal(t, tt.expected, f.store.Snapshot())
		})
	}
}

// TestClearAccessToken_Concurrent tests sign-out racing with header refreshes.
func TestClearAccessToken_Concurrent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, map[string]string{ClientTokenKey: validToken, ServerTokenKey: validToken})

	f.client.EXPECT().SignOut(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.client.EXPECT().AcknowledgeRefresh(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	const workers = 8

	var wg sync.WaitGroup

	for range workers {
		wg.Add(2)

		go func() {
			defer wg.Done()

			assert.NoError(t, f.manager.ClearAccessToken(t.Context(), false))
		}()

		go func() {
			defer wg.Done()

			_, err := f.manager.RefreshAccessTokenFromHeader(t.Context(), http.Header{})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	require.NoError(t, f.manager.ClearAccessToken(t.Context(), false))
	assert.Empty(t, f.store.Snapshot())
}

// TestIsAuthenticated tests authentication status queries.
func TestIsAuthenticated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, appURL, map[string]string{ClientTokenKey: validToken})

	authenticated, err := f.manager.IsAuthenticated(t.Context())
	require.NoError(t, err)
	assert.True(t, authenticated)

	f = newFixture(t, appURL, nil)
	f.client.EXPECT().IssueToken(gomock.Any()).Return("", sso.ErrUnexpectedHTTPStatus)

	authenticated, err = f.manager.IsAuthenticated(t.Context())
	require.NoError(t, err)
	assert.False(t, authenticated)

	f = newFixture(t, appURL, map[string]string{ClientTokenKey: "Bearer not-a-jwt"})

	authenticated, err = f.manager.IsAuthenticated(t.Context())
	require.Error(t, err)
	assert.False(t, authenticated)
}

// TestInspect tests the state derived from the slots.
func TestInspect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		slots    map[string]string
		expected State
	}{
		{
			name:     "empty",
			expected: StateUnauthenticated,
		},
		{
			name:     "server token only",
			slots:    map[string]string{ServerTokenKey: validToken},
			expected: StateUnauthenticated,
		},
		{
			name:     "client token only",
			slots:    map[string]string{ClientTokenKey: validToken},
			expected: StateClientOnly,
		},
		{
			name:     "both tokens",
			slots:    map[string]string{ClientTokenKey: validToken, ServerTokenKey: otherToken},
			expected: StateAcknowledged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, appURL, tt.slots)

			snapshot, err := f.manager.Inspect(t.Context())
			require.NoError(t, err)

			assert.Equal(t, tt.expected, snapshot.State)
			assert.Equal(t, tt.slots[ClientTokenKey], snapshot.ClientToken)
			assert.Equal(t, tt.slots[ServerTokenKey], snapshot.ServerToken)
		})
	}

	assert.Equal(t, "acknowledged", StateAcknowledged.String())
	assert.Equal(t, "unknown", State(42).String())
}

// TestManager_StorageFailure tests that storage failures are returned wrapped.
func TestManager_StorageFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)

	storeErr := errors.New("redis is down")

	store := mock_storage.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), ClientTokenKey).Return("", false, storeErr).AnyTimes()

	start, err := url.Parse(appURL)
	require.NoError(t, err)

	manager := NewManager(store, mock_sso.NewMockClient(ctrl), navigation.NewBrowser(start))

	_, err = manager.GetAccessToken(t.Context())
	require.ErrorIs(t, err, ErrStorage)
	require.ErrorIs(t, err, storeErr)

	err = manager.ClearAccessToken(t.Context(), false)
	require.ErrorIs(t, err, ErrStorage)

	_, err = manager.SetAccessToken(t.Context(), validToken)
	require.ErrorIs(t, err, ErrStorage)
}
