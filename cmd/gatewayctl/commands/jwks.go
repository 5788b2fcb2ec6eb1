package commands

import (
	"fmt"
	"time"

	"github.com/benvon/inbox-gateway/internal/config"
	"github.com/benvon/inbox-gateway/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewJWKSCmd creates the jwks command
func NewJWKSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Inspect the identity provider key set",
	}
	cmd.AddCommand(newJWKSCheckCmd())
	return cmd
}

func newJWKSCheckCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch the key set and list its key ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				url = cfg.JWKSURL()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Testing JWKS endpoint: %s\n", url)
			keys, err := oidc.NewJWKSManager(url, oidc.WithRefreshInterval(0))
			if err != nil {
				return err
			}
			start := time.Now()
			if err := keys.Prefetch(cmd.Context()); err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}

			ids := keys.KeyIDs()
			fmt.Fprintf(cmd.OutOrStdout(), "✓ JWKS endpoint returned %d keys in %s\n", len(ids), time.Since(start).Round(time.Millisecond))
			for _, kid := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", kid)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "JWKS URL (defaults to the AUTH0_DOMAIN key set)")

	return cmd
}
