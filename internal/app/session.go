package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/oshokin/sso-keeper/internal/client/sso"
	"github.com/oshokin/sso-keeper/internal/config"
	"github.com/oshokin/sso-keeper/internal/logger"
	"github.com/oshokin/sso-keeper/internal/metrics"
	"github.com/oshokin/sso-keeper/internal/navigation"
	"github.com/oshokin/sso-keeper/internal/service/session"
	"github.com/oshokin/sso-keeper/internal/storage"
	"github.com/oshokin/sso-keeper/internal/token"
)

// Session bundles a session manager with the resources it owns.
type Session struct {
	// Manager is the session manager.
	Manager *session.Manager
	// Browser is the navigator the manager reads and redirects.
	Browser *navigation.Browser
	// Registry holds the session metrics.
	Registry *prometheus.Registry

	closers []func() error
}

// NewSession builds a session manager from cfg, positioned at location.
// An empty location means the backend root.
func NewSession(ctx context.Context, cfg *config.Config, location string) (*Session, error) {
	start, err := startLocation(cfg, location)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Browser:  navigation.NewBrowser(start),
		Registry: prometheus.NewRegistry(),
	}

	store, err := s.newStore(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	parser, err := token.NewParser(cfg.ParseCacheSize)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	client, err := sso.NewClient(cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize SSO client: %w", err), s.Close())
	}

	s.Manager = session.NewManager(store, client, s.Browser,
		session.WithParser(parser),
		session.WithRecorder(metrics.NewRecorder(s.Registry)),
		session.WithCallbackPath(cfg.CallbackPath),
		session.WithRefreshHeader(cfg.RefreshHeader))

	return s, nil
}

// Close releases the storage connection and logs the collected metrics at debug level.
func (s *Session) Close() error {
	logMetrics(context.Background(), s.Registry)

	var errs []error

	for _, closer := range s.closers {
		errs = append(errs, closer())
	}

	s.closers = nil

	return errors.Join(errs...)
}

func (s *Session) newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageFile:
		return storage.NewFileStore(cfg.SessionFile), nil
	case config.StorageRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddress},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		s.closers = append(s.closers, client.Close)

		store, err := storage.NewRedisStore(client, cfg.SessionID, cfg.ParsedSessionTTL)
		if err != nil {
			return nil, err
		}

		if err = store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddress, err)
		}

		if cfg.SessionIDGenerated {
			if err = config.SaveConfig(cfg); err != nil {
				return nil, fmt.Errorf("failed to save session id: %w", err)
			}

			cfg.SessionIDGenerated = false

			logger.Infof(ctx, "New session %s was saved to %s", cfg.SessionID, cfg.ConfigFilename)
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnknownStorage, cfg.Storage)
	}
}

func startLocation(cfg *config.Config, location string) (*url.URL, error) {
	baseURL := cfg.ParsedBaseURL
	if baseURL == nil {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalidBaseURL, err)
		}

		baseURL = parsed
	}

	if location == "" {
		location = "/"
	}

	target, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location '%s': %w", location, err)
	}

	return baseURL.ResolveReference(target), nil
}

func logMetrics(ctx context.Context, registry *prometheus.Registry) {
	if registry == nil || !logger.IsDebugLevel() {
		return
	}

	families, err := registry.Gather()
	if err != nil {
		logger.Debugf(ctx, "Failed to gather metrics: %v", err)

		return
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]any, 0, 2*len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, label.GetName(), label.GetValue())
			}

			logger.DebugKV(ctx, family.GetName(), append(labels, "value", metric.GetCounter().GetValue())...)
		}
	}
}
