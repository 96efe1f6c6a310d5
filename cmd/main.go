package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "identity-service",
	Short: "Session issuance and identity verification service",
	Long: `identity-service issues session credentials for email/password and
Google logins and authenticates them on later requests.

Configuration is read from the environment (and a .env file when present).`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, schemaCmd, codeCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
