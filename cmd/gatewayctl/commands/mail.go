package commands

import (
	"fmt"

	"github.com/benvon/inbox-gateway/internal/config"
	"github.com/benvon/inbox-gateway/internal/logger"
	"github.com/benvon/inbox-gateway/internal/services/gmail"
	"github.com/spf13/cobra"
)

// NewMailCmd creates the mail command and its subcommands
func NewMailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Manage the delegated mailbox credential",
		Long:  "Authorize, inspect and remove the Gmail credential stored in GMAIL_TOKEN_FILE",
	}

	cmd.AddCommand(newMailAuthURLCmd())
	cmd.AddCommand(newMailExchangeCmd())
	cmd.AddCommand(newMailStatusCmd())
	cmd.AddCommand(newMailLogoutCmd())

	return cmd
}

func credentialStore(debug bool) (*gmail.CredentialStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.MailEnabled() {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	log, err := logger.NewDevelopmentLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	oauthConfig := gmail.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	return gmail.NewCredentialStore(oauthConfig, cfg.GmailTokenFile, nil, log), nil
}

func newMailAuthURLCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Google consent URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore(debug)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.AuthorizationURL())
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func newMailExchangeCmd() *cobra.Command {
	var code string
	var debug bool
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code and store the credential",
		Long:  "Exchange the code returned to the redirect URI after consent. The state parameter is not checked here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				return fmt.Errorf("--code is required")
			}
			store, err := credentialStore(debug)
			if err != nil {
				return err
			}
			if err := store.ExchangeCode(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Credential stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Authorization code (required)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func newMailStatusCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a usable credential is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore(debug)
			if err != nil {
				return err
			}
			if store.LoadCredentials(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "authenticated")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "not authenticated")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func newMailLogoutCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentialStore(debug)
			if err != nil {
				return err
			}
			if err := store.Revoke(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}
