package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/sso-keeper/internal/config"
	"github.com/oshokin/sso-keeper/internal/logger"
	"github.com/oshokin/sso-keeper/internal/service/session"
	"github.com/oshokin/sso-keeper/internal/token"
	http_transport "github.com/oshokin/sso-keeper/internal/transport/http"
)

var (
	// ErrNotAuthenticated indicates that no session could be established.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotCallbackURL indicates that a sign-in URL does not point to the callback path.
	ErrNotCallbackURL = errors.New("URL is not an SSO callback")
	// ErrInvalidHeader indicates that a header argument is not in "Name: value" form.
	ErrInvalidHeader = errors.New("header must be in 'Name: value' form")
)

// maxResponseBodySize bounds the body printed by the call command.
const maxResponseBodySize = 1 << 20

// ExecuteTokenCommand prints the current access token, bootstrapping a session if needed.
func ExecuteTokenCommand(ctx context.Context, cfg *config.Config, out io.Writer) error {
	return withSession(ctx, cfg, "", func(s *Session) error {
		accessToken, err := s.Manager.GetAccessToken(ctx)
		if err != nil {
			return err
		}

		if accessToken == "" {
			return ErrNotAuthenticated
		}

		_, err = fmt.Fprintln(out, accessToken)

		return err
	})
}

// ExecuteStatusCommand prints the session state without changing it.
func ExecuteStatusCommand(ctx context.Context, cfg *config.Config, out io.Writer) error {
	return withSession(ctx, cfg, "", func(s *Session) error {
		snapshot, err := s.Manager.Inspect(ctx)
		if err != nil {
			return err
		}

		if _, err = fmt.Fprintf(out, "state: %s\n", snapshot.State); err != nil {
			return err
		}

		if snapshot.ClientToken == "" {
			return nil
		}

		parsed, err := s.Manager.ParseAccessToken(ctx, snapshot.ClientToken)
		if err != nil {
			_, err = fmt.Fprintf(out, "client token: malformed (%v)\n", err)

			return err
		}

		if err = printToken(out, parsed, time.Now()); err != nil {
			return err
		}

		_, err = fmt.Fprintf(out, "acknowledged: %t\n", snapshot.ServerToken == snapshot.ClientToken)

		return err
	})
}

// ExecuteSignInCommand consumes an SSO callback URL and prints the resulting token.
func ExecuteSignInCommand(ctx context.Context, cfg *config.Config, callbackURL string, out io.Writer) error {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotCallbackURL, err)
	}

	if !strings.HasPrefix(parsed.Path, cfg.CallbackPath) {
		return fmt.Errorf("%w: path '%s' does not start with '%s'", ErrNotCallbackURL, parsed.Path, cfg.CallbackPath)
	}

	return withSession(ctx, cfg, callbackURL, func(s *Session) error {
		accessToken, err := s.Manager.GetAccessToken(ctx)
		if err != nil {
			return err
		}

		if accessToken == "" {
			return ErrNotAuthenticated
		}

		_, err = fmt.Fprintf(out, "signed in, redirected to %s\n", s.Browser.Location())

		return err
	})
}

// ExecuteSetCommand adopts an externally supplied token and prints the redirect, if any.
func ExecuteSetCommand(ctx context.Context, cfg *config.Config, rawToken string, out io.Writer) error {
	return withSession(ctx, cfg, "", func(s *Session) error {
		outcome, err := s.Manager.SetAccessToken(ctx, rawToken)
		if err != nil {
			return err
		}

		if outcome.IsRedirect() {
			if _, err = fmt.Fprintf(out, "redirect: %s\n", s.Browser.Location()); err != nil {
				return err
			}

			logger.Info(ctx, "Complete the handshake with the signin command and the redirect URL")

			return nil
		}

		_, err = fmt.Fprintln(out, "token updated")

		return err
	})
}

// ExecuteRefreshCommand reconciles the session with the given response headers.
func ExecuteRefreshCommand(ctx context.Context, cfg *config.Config, headers []string, out io.Writer) error {
	header, err := parseHeaders(headers)
	if err != nil {
		return err
	}

	return withSession(ctx, cfg, "", func(s *Session) error {
		refreshed, err := s.Manager.RefreshAccessTokenFromHeader(ctx, header)
		if err != nil {
			return err
		}

		if refreshed == "" {
			refreshed = "no change"
		}

		_, err = fmt.Fprintln(out, refreshed)

		return err
	})
}

// ExecuteCallCommand performs an authorized GET request against the backend and prints the response.
func ExecuteCallCommand(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	return withSession(ctx, cfg, "", func(s *Session) error {
		target, err := startLocation(cfg, path)
		if err != nil {
			return err
		}

		httpClient := &http.Client{
			Transport: http_transport.NewAuthorizer(
				http_transport.NewUserAgentInjector(
					http_transport.NewLogTransport(http.DefaultTransport, config.DefaultMaxLogLength, cfg.RefreshHeader),
					http_transport.UserAgentProviderFor(cfg.UserAgent)),
				s.Manager),
			Timeout: cfg.ParsedRequestTimeout,
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
		if err != nil {
			return err
		}

		response, err := httpClient.Do(request)
		if err != nil {
			if errors.Is(err, http_transport.ErrNoSession) {
				return ErrNotAuthenticated
			}

			return err
		}

		defer response.Body.Close()

		if _, err = fmt.Fprintln(out, response.Status); err != nil {
			return err
		}

		_, err = io.Copy(out, io.LimitReader(response.Body, maxResponseBodySize))

		return err
	})
}

// ExecuteSignOutCommand clears the session, signing out on the backend unless clientOnly is set.
func ExecuteSignOutCommand(ctx context.Context, cfg *config.Config, clientOnly bool, out io.Writer) error {
	return withSession(ctx, cfg, "", func(s *Session) error {
		if err := s.Manager.ClearAccessToken(ctx, clientOnly); err != nil {
			return err
		}

		snapshot, err := s.Manager.Inspect(ctx)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(out, "state: %s\n", snapshot.State)

		return err
	})
}

// ExecuteInspectCommand parses a token and prints its scheme and expiration.
func ExecuteInspectCommand(ctx context.Context, cfg *config.Config, rawToken string, out io.Writer) error {
	parser, err := token.NewParser(cfg.ParseCacheSize)
	if err != nil {
		return err
	}

	parsed, err := parser.Parse(ctx, rawToken)
	if err != nil {
		return err
	}

	return printToken(out, parsed, time.Now())
}

func withSession(ctx context.Context, cfg *config.Config, location string, fn func(s *Session) error) error {
	s, err := NewSession(ctx, cfg, location)
	if err != nil {
		return err
	}

	err = fn(s)

	if closeErr := s.Close(); closeErr != nil {
		logger.Warnf(ctx, "Failed to close session resources: %v", closeErr)
	}

	return err
}

func printToken(out io.Writer, parsed *token.Token, now time.Time) error {
	_, err := fmt.Fprintf(out, "scheme: %s\nexpires: %s (%s)\nexpired: %t\n",
		parsed.Scheme,
		parsed.ExpiresAt.Format(time.RFC3339),
		humanize.RelTime(parsed.ExpiresAt, now, "ago", "from now"),
		parsed.IsExpired(now))

	return err
}

func parseHeaders(headers []string) (http.Header, error) {
	header := make(http.Header, len(headers))

	for _, raw := range headers {
		name, value, ok := strings.Cut(raw, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: '%s'", ErrInvalidHeader, raw)
		}

		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return header, nil
}

var _ http_transport.SessionManager = (*session.Manager)(nil)
