package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/sso-keeper/internal/constants"
	"github.com/oshokin/sso-keeper/internal/logger"
)

// Config holds all configuration settings.
type Config struct {
	// BaseURL is the backend origin serving the token, refresh and sign-out endpoints.
	BaseURL string `mapstructure:"base_url"`
	// TokenPath is the path of the token issuance endpoint.
	TokenPath string `mapstructure:"token_path"`
	// RefreshPath is the path of the SSO refresh acknowledgment endpoint.
	RefreshPath string `mapstructure:"refresh_path"`
	// SignOutPath is the path of the sign-out endpoint.
	SignOutPath string `mapstructure:"signout_path"`
	// CallbackPath is the path the SSO handshake redirects to.
	CallbackPath string `mapstructure:"callback_path"`
	// RefreshHeader is the response header carrying refreshed signatures.
	RefreshHeader string `mapstructure:"refresh_header"`
	// Storage selects the session storage backend: memory, file or redis.
	Storage string `mapstructure:"storage"`
	// SessionFile is the location of the file storage backend.
	SessionFile string `mapstructure:"session_file"`
	// SessionID namespaces the redis keys of this session.
	SessionID string `mapstructure:"session_id"`
	// SessionTTL is the lifetime of redis slots (e.g., "12h").
	SessionTTL string `mapstructure:"session_ttl"`
	// RedisAddress is the host:port of the redis server.
	RedisAddress string `mapstructure:"redis_address"`
	// RedisPassword is the redis password.
	RedisPassword string `mapstructure:"redis_password"`
	// RedisDB is the redis database number.
	RedisDB int `mapstructure:"redis_db"`
	// RequestTimeout is the timeout of backend calls (e.g., "60s").
	RequestTimeout string `mapstructure:"request_timeout"`
	// UserAgent is sent with every backend call.
	UserAgent string `mapstructure:"user_agent"`
	// ParseCacheSize is the number of parsed tokens kept in memory.
	ParseCacheSize int `mapstructure:"parse_cache_size"`
	// LogLevel specifies the logging verbosity level.
	LogLevel string `mapstructure:"log_level"`
	// ConfigFilename is the file the configuration was loaded from.
	ConfigFilename string `mapstructure:"-"`
	// ParsedBaseURL is the parsed backend origin.
	ParsedBaseURL *url.URL `mapstructure:"-"`
	// ParsedSessionTTL is the parsed redis slot lifetime.
	ParsedSessionTTL time.Duration `mapstructure:"-"`
	// ParsedRequestTimeout is the parsed backend call timeout.
	ParsedRequestTimeout time.Duration `mapstructure:"-"`
	// ParsedLogLevel is the parsed zap log level.
	ParsedLogLevel zapcore.Level `mapstructure:"-"`
	// SessionIDGenerated reports whether ValidateConfig generated SessionID.
	SessionIDGenerated bool `mapstructure:"-"`
}

// Storage backends.
const (
	// StorageMemory keeps slots for the lifetime of the process.
	StorageMemory = "memory"
	// StorageFile keeps slots in SessionFile.
	StorageFile = "file"
	// StorageRedis keeps slots in redis under SessionID.
	StorageRedis = "redis"
)

const (
	// DefaultConfigFilename is the default name of the configuration file.
	DefaultConfigFilename = ".sso-keeper.yaml"

	// DefaultTokenPath is the default token issuance path.
	DefaultTokenPath = "/token"

	// DefaultRefreshPath is the default refresh acknowledgment path.
	DefaultRefreshPath = "/sso-refresh"

	// DefaultSignOutPath is the default sign-out path.
	DefaultSignOutPath = "/signout"

	// DefaultCallbackPath is the default SSO callback path.
	DefaultCallbackPath = "/signin-sso"

	// DefaultRefreshHeader is the default refresh response header.
	DefaultRefreshHeader = "Ocp-Apim-Sas-Token"

	// DefaultSessionFile is the default location of the file storage backend.
	DefaultSessionFile = ".sso-keeper.session.yaml"

	// DefaultSessionTTL is the default lifetime of redis slots.
	DefaultSessionTTL = "12h"

	// DefaultRedisAddress is the default redis server.
	DefaultRedisAddress = "127.0.0.1:6379"

	// DefaultRequestTimeout is the default backend call timeout.
	DefaultRequestTimeout = "60s"

	// DefaultParseCacheSize is the default number of parsed tokens kept in memory.
	DefaultParseCacheSize = 256

	// DefaultMaxLogLength is the default maximum size (in bytes) for logged HTTP dumps.
	DefaultMaxLogLength = 1 * 1024 * 1024 // 1 MB

	// sessionIDKey is the YAML key of the session namespace.
	sessionIDKey = "session_id"
)

// Static error definitions for better error handling.
var (
	// ErrEmptyBaseURL indicates that the backend origin is missing.
	ErrEmptyBaseURL = errors.New("base_url cannot be empty")
	// ErrInvalidBaseURL indicates that the backend origin is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("base_url must be an absolute http or https URL")
	// ErrInvalidPath indicates that an endpoint path does not start with a slash.
	ErrInvalidPath = errors.New("endpoint path must start with '/'")
	// ErrEmptyRefreshHeader indicates that the refresh header name is missing.
	ErrEmptyRefreshHeader = errors.New("refresh_header cannot be empty")
	// ErrUnknownStorage indicates that the storage backend is not recognized.
	ErrUnknownStorage = errors.New("unknown storage")
	// ErrEmptySessionFile indicates that the file backend has no location.
	ErrEmptySessionFile = errors.New("session_file cannot be empty for file storage")
	// ErrEmptyRedisAddress indicates that the redis backend has no address.
	ErrEmptyRedisAddress = errors.New("redis_address cannot be empty for redis storage")
	// ErrInvalidSessionTTL indicates that the redis slot lifetime is negative.
	ErrInvalidSessionTTL = errors.New("session_ttl cannot be negative")
	// ErrInvalidRequestTimeout indicates that the backend call timeout is not positive.
	ErrInvalidRequestTimeout = errors.New("request_timeout must be positive")
	// ErrInvalidParseCacheSize indicates that the parse cache size is negative.
	ErrInvalidParseCacheSize = errors.New("parse_cache_size cannot be negative")
	// ErrUnknownLogLevel indicates that the log level is not recognized.
	ErrUnknownLogLevel = errors.New("unknown log level")
)

// LoadConfig loads configuration settings from a YAML file.
func LoadConfig(configFilename string) (*Config, error) {
	if configFilename == "" {
		configFilename = DefaultConfigFilename
	}

	v := viper.New()
	v.SetConfigFile(configFilename)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigFilename = configFilename

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("token_path", DefaultTokenPath)
	v.SetDefault("refresh_path", DefaultRefreshPath)
	v.SetDefault("signout_path", DefaultSignOutPath)
	v.SetDefault("callback_path", DefaultCallbackPath)
	v.SetDefault("refresh_header", DefaultRefreshHeader)
	v.SetDefault("storage", StorageFile)
	v.SetDefault("session_file", DefaultSessionFile)
	v.SetDefault("session_ttl", DefaultSessionTTL)
	v.SetDefault("redis_address", DefaultRedisAddress)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("parse_cache_size", DefaultParseCacheSize)
	v.SetDefault("log_level", "info")
}

// ValidateConfig checks the configuration for validity and sets derived fields.
//
//nolint:funlen,gocognit,cyclop // Validation functions naturally have high complexity and length due to sequential checks.
func ValidateConfig(cfg *Config) error {
	var err error

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return ErrEmptyBaseURL
	}

	cfg.ParsedBaseURL, err = url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	if cfg.ParsedBaseURL.Host == "" ||
		(cfg.ParsedBaseURL.Scheme != "http" && cfg.ParsedBaseURL.Scheme != "https") {
		return fmt.Errorf("%w: '%s'", ErrInvalidBaseURL, baseURL)
	}

	for name, path := range map[string]string{
		"token_path":    cfg.TokenPath,
		"refresh_path":  cfg.RefreshPath,
		"signout_path":  cfg.SignOutPath,
		"callback_path": cfg.CallbackPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%w: %s is '%s'", ErrInvalidPath, name, path)
		}
	}

	if strings.TrimSpace(cfg.RefreshHeader) == "" {
		return ErrEmptyRefreshHeader
	}

	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	switch cfg.Storage {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(cfg.SessionFile) == "" {
			return ErrEmptySessionFile
		}
	case StorageRedis:
		if strings.TrimSpace(cfg.RedisAddress) == "" {
			return ErrEmptyRedisAddress
		}

		if cfg.SessionID == "" {
			cfg.SessionID = uuid.NewString()
			cfg.SessionIDGenerated = true
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownStorage, cfg.Storage)
	}

	if cfg.SessionTTL != "" {
		cfg.ParsedSessionTTL, err = time.ParseDuration(cfg.SessionTTL)
		if err != nil {
			return fmt.Errorf("failed to parse session ttl: %w", err)
		}

		if cfg.ParsedSessionTTL < 0 {
			return ErrInvalidSessionTTL
		}
	}

	cfg.ParsedRequestTimeout, err = time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse request timeout: %w", err)
	}

	if cfg.ParsedRequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}

	if cfg.ParseCacheSize < 0 {
		return ErrInvalidParseCacheSize
	}

	parsedLogLevel, isLogLevelCorrect := logger.ParseLogLevel(cfg.LogLevel)
	if !isLogLevelCorrect {
		return fmt.Errorf("%w: '%s'", ErrUnknownLogLevel, cfg.LogLevel)
	}

	cfg.ParsedLogLevel = parsedLogLevel

	return nil
}

// SaveConfig stores the session namespace in the configuration file
// while preserving the original format and order.
func SaveConfig(cfg *Config) error {
	configFile := cfg.ConfigFilename
	if configFile == "" {
		configFile = DefaultConfigFilename
	}

	// Read the original file content.
	originalContent, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML while preserving order using yaml.Node.
	var node yaml.Node
	if err = yaml.Unmarshal(originalContent, &node); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Update the session_id value in the node tree.
	if !upsertValueInNode(&node, sessionIDKey, cfg.SessionID) {
		return fmt.Errorf("failed to update %s: config root is not a mapping", sessionIDKey)
	}

	// Marshal back to YAML (preserves order).
	newContent, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	// Write the file back with preserved order.
	if err = os.WriteFile(configFile, newContent, constants.DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// upsertValueInNode updates key in the YAML node tree, appending it when absent.
// It returns false when the document root is not a mapping.
func upsertValueInNode(node *yaml.Node, key, value string) bool {
	// The root node is a document node, content[0] is the actual map.
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return false
	}

	mapNode := node.Content[0]

	// Iterate through key-value pairs (stored as alternating nodes).
	for i := 0; i < len(mapNode.Content); i += 2 {
		keyNode := mapNode.Content[i]
		valueNode := mapNode.Content[i+1]

		if keyNode.Value == key {
			// Update the value while preserving style.
			valueNode.Value = value

			// Ensure it's quoted if it contains special characters.
			if valueNode.Style == 0 {
				valueNode.Style = yaml.DoubleQuotedStyle
			}

			return true
		}
	}

	mapNode.Content = append(mapNode.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: yaml.DoubleQuotedStyle},
	)

	return true
}
