package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/sso-keeper/internal/config"
	"github.com/oshokin/sso-keeper/internal/constants"
)

const testBaseConfigContent = `
base_url: "https://portal.example.com"
storage: "file"
session_file: "/tmp/sso-keeper.session.yaml"
log_level: "info"
`

// newTestCommand creates a command with the same flags as the root command.
func newTestCommand() *cobra.Command {
	testCmd := &cobra.Command{Use: "test"}

	testCmd.Flags().StringP("base-url", "u", "", "backend origin")
	testCmd.Flags().StringP("storage", "s", "", "session storage")
	testCmd.Flags().StringP("log-level", "l", "", "log level")

	return testCmd
}

// loadTestConfig writes content to a temporary file and loads it.
func loadTestConfig(t *testing.T, content string) *config.Config {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "test-config.yaml")

	err := os.WriteFile(configPath, []byte(content), constants.DefaultFilePermissions)
	require.NoError(t, err)

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	return cfg
}

// TestFlagOverrides tests that command-line flags correctly override configuration file values.
//
//nolint:funlen // It's a comprehensive integration test.
func TestFlagOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		flags          map[string]string
		expectedConfig func(*testing.T, *config.Config)
	}{
		{
			name:  "no flags - use config values",
			flags: map[string]string{},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "https://portal.example.com", cfg.BaseURL)
				assert.Equal(t, config.StorageFile, cfg.Storage)
				assert.Equal(t, "info", cfg.LogLevel)
			},
		},
		{
			name: "base-url flag only",
			flags: map[string]string{
				"base-url": "http://localhost:8080",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
				assert.Equal(t, "localhost:8080", cfg.ParsedBaseURL.Host)
				assert.Equal(t, config.StorageFile, cfg.Storage)
			},
		},
		{
			name: "storage flag only",
			flags: map[string]string{
				"storage": "Memory",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "https://portal.example.com", cfg.BaseURL)
				assert.Equal(t, config.StorageMemory, cfg.Storage)
			},
		},
		{
			name: "redis storage generates a session id",
			flags: map[string]string{
				"storage": "redis",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, config.StorageRedis, cfg.Storage)
				assert.NotEmpty(t, cfg.SessionID)
				assert.True(t, cfg.SessionIDGenerated)
			},
		},
		{
			name: "log-level flag only",
			flags: map[string]string{
				"log-level": "debug",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "debug", cfg.ParsedLogLevel.String())
			},
		},
		{
			name: "all flags - override everything",
			flags: map[string]string{
				"base-url":  "https://sso.example.org",
				"storage":   "memory",
				"log-level": "warn",
			},
			expectedConfig: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "https://sso.example.org", cfg.BaseURL)
				assert.Equal(t, config.StorageMemory, cfg.Storage)
				assert.Equal(t, "warn", cfg.ParsedLogLevel.String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := loadTestConfig(t, testBaseConfigContent)
			testCmd := newTestCommand()

			for flagName, flagValue := range tt.flags {
				require.NoError(t, testCmd.Flags().Set(flagName, flagValue), "failed to set flag %s", flagName)
			}

			require.NoError(t, bindFlagsToConfig(testCmd.Flags(), cfg))

			tt.expectedConfig(t, cfg)
		})
	}
}

// TestFlagOverrides_InvalidValues tests that invalid flag values are caught during validation.
func TestFlagOverrides_InvalidValues(t *testing.T) {
	t.Parallel()

	invalidTests := []struct {
		name          string
		flagName      string
		flagValue     string
		expectedError error
	}{
		{
			name:          "invalid base url",
			flagName:      "base-url",
			flagValue:     "portal.example.com",
			expectedError: config.ErrInvalidBaseURL,
		},
		{
			name:          "empty base url",
			flagName:      "base-url",
			flagValue:     " ",
			expectedError: config.ErrEmptyBaseURL,
		},
		{
			name:          "unknown storage",
			flagName:      "storage",
			flagValue:     "cookies",
			expectedError: config.ErrUnknownStorage,
		},
		{
			name:          "unknown log level",
			flagName:      "log-level",
			flagValue:     "verbose",
			expectedError: config.ErrUnknownLogLevel,
		},
	}

	for _, tt := range invalidTests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := loadTestConfig(t, testBaseConfigContent)
			testCmd := newTestCommand()

			require.NoError(t, testCmd.Flags().Set(tt.flagName, tt.flagValue))

			err := bindFlagsToConfig(testCmd.Flags(), cfg)
			require.ErrorIs(t, err, tt.expectedError)
		})
	}
}

// TestBindFlagsToConfig_EmptyFlagSet tests handling of empty flag set.
func TestBindFlagsToConfig_EmptyFlagSet(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		BaseURL:        "https://portal.example.com",
		TokenPath:      config.DefaultTokenPath,
		RefreshPath:    config.DefaultRefreshPath,
		SignOutPath:    config.DefaultSignOutPath,
		CallbackPath:   config.DefaultCallbackPath,
		RefreshHeader:  config.DefaultRefreshHeader,
		Storage:        config.StorageMemory,
		RequestTimeout: config.DefaultRequestTimeout,
		LogLevel:       "info",
	}

	// Calling with empty flag set should just validate the config.
	emptyFlags := pflag.NewFlagSet("test", pflag.ContinueOnError)

	require.NoError(t, bindFlagsToConfig(emptyFlags, cfg))
}

// TestRootCommand_Subcommands tests that every session command is registered.
func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"token", "status", "signin", "set", "refresh", "call", "signout", "inspect", "version"} {
		found, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}

	assert.NotNil(t, refreshCmd.Flags().Lookup("header"))
	assert.NotNil(t, signOutCmd.Flags().Lookup("client-only"))
}
