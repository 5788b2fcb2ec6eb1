package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benvon/inbox-gateway/internal/config"
	"github.com/benvon/inbox-gateway/internal/database"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the profile table",
		Long:  "Create the users table in the configured database if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				databaseURL = cfg.DatabaseURL
			}

			db, err := database.New(databaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := db.Migrate(ctx); err != nil {
				return err
			}
			count, err := database.NewProfileStore(db).Count(ctx)
			if err != nil {
				return fmt.Errorf("failed to count profiles: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ users table ready (%s, %d profiles)\n", db.Driver(), count)
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Database URL (defaults to DATABASE_URL)")

	return cmd
}
