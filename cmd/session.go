package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/sso-keeper/internal/app"
	"github.com/oshokin/sso-keeper/internal/logger"
	"github.com/oshokin/sso-keeper/internal/version"
)

//nolint:gochecknoglobals // Cobra commands are defined globally.
var (
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Print the current access token",
		Long: `Prints the access token used to authorize backend requests.

Without a session the token endpoint is asked for one; the issued
token is stored as both the client and the acknowledged token.
An expired token ends the session.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := app.ExecuteTokenCommand(cmd.Context(), appConfig, cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to get access token: %v", err)
			}
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the session state without changing it",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := app.ExecuteStatusCommand(cmd.Context(), appConfig, cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to read session state: %v", err)
			}
		},
	}

	signInCmd = &cobra.Command{
		Use:   "signin <callback-url>",
		Short: "Complete the SSO handshake from a callback URL",
		Long: `Consumes an SSO callback URL such as

  https://portal.example.com/signin-sso?token=<signature>

and stores the signature as the client token.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := app.ExecuteSignInCommand(cmd.Context(), appConfig, args[0], cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to sign in: %v", err)
			}
		},
	}

	setCmd = &cobra.Command{
		Use:   "set <token>",
		Short: "Adopt an externally issued token",
		Long: `Stores a scheme-prefixed token. Without an existing session the
SSO handshake is started and the callback URL to open next is printed.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := app.ExecuteSetCommand(cmd.Context(), appConfig, args[0], cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to set access token: %v", err)
			}
		},
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh --header 'Name: value'",
		Short: "Reconcile the session with backend response headers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			headers, _ := cmd.Flags().GetStringArray("header")

			if err := app.ExecuteRefreshCommand(cmd.Context(), appConfig, headers, cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to refresh session: %v", err)
			}
		},
	}

	callCmd = &cobra.Command{
		Use:   "call <path>",
		Short: "Perform an authorized GET request against the backend",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := app.ExecuteCallCommand(cmd.Context(), appConfig, args[0], cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Request failed: %v", err)
			}
		},
	}

	signOutCmd = &cobra.Command{
		Use:   "signout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			clientOnly, _ := cmd.Flags().GetBool("client-only")

			if err := app.ExecuteSignOutCommand(cmd.Context(), appConfig, clientOnly, cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to sign out: %v", err)
			}
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <token>",
		Short: "Print the scheme and expiration of a token",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := app.ExecuteInspectCommand(cmd.Context(), appConfig, args[0], cmd.OutOrStdout()); err != nil {
				logger.Fatalf(cmd.Context(), "Failed to parse token: %v", err)
			}
		},
	}

	versionCmd = &cobra.Command{
		Use:              "version",
		Short:            "Print build information",
		Args:             cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
)

//nolint:gochecknoinits // Cobra requires the init function to set up commands.
func init() {
	refreshCmd.Flags().StringArrayP("header", "H", nil, "response header in 'Name: value' form, may be repeated.")
	_ = refreshCmd.MarkFlagRequired("header")

	signOutCmd.Flags().Bool("client-only", false, "clear the local token without calling the sign-out endpoint.")

	rootCmd.AddCommand(
		tokenCmd,
		statusCmd,
		signInCmd,
		setCmd,
		refreshCmd,
		callCmd,
		signOutCmd,
		inspectCmd,
		versionCmd)
}
