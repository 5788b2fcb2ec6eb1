package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benvon/inbox-gateway/internal/config"
	"github.com/benvon/inbox-gateway/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewTokenCmd creates the token command
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with bearer tokens",
	}
	cmd.AddCommand(newTokenVerifyCmd())
	return cmd
}

func newTokenVerifyCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a bearer token and print its claims",
		Long:  "Verify a token against the AUTH0_DOMAIN key set, issuer and API_IDENTIFIER audience",
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			keys, err := oidc.NewJWKSManager(cfg.JWKSURL(), oidc.WithCacheTTL(cfg.JWKSCacheTTL), oidc.WithRefreshInterval(0))
			if err != nil {
				return err
			}
			if err := keys.Prefetch(cmd.Context()); err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}

			claims, err := oidc.NewVerifier(keys, cfg.Issuer(), cfg.APIIdentifier, cfg.TokenClockSkew).Verify(cmd.Context(), token)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims.Raw)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token (required)")

	return cmd
}
