package main

import (
	"fmt"
	"os"

	"github.com/benvon/inbox-gateway/cmd/gatewayctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "gatewayctl",
		Short: "Operator tool for the inbox gateway",
		Long:  "CLI tool for migrating the profile database, authorizing the delegated mailbox and checking identity provider keys",
	}

	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewMailCmd())
	rootCmd.AddCommand(commands.NewTokenCmd())
	rootCmd.AddCommand(commands.NewJWKSCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
