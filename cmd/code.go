package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/duynhne/identity-service/config"
)

var (
	codeUserID string
	codeTTL    time.Duration
)

// codeCmd issues a single-use login code out of band, e.g. for an email link.
var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Issue a single-use login code for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := uuid.Parse(codeUserID)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return errors.New("code requires DATABASE_DRIVER=postgres")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store, pool, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		sessions, err := newSessionService(cfg, store)
		if err != nil {
			return err
		}
		code, err := sessions.IssueSingleUseCode(ctx, owner, codeTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}

func init() {
	codeCmd.Flags().StringVar(&codeUserID, "user", "", "user id the code logs in as")
	codeCmd.Flags().DurationVar(&codeTTL, "ttl", 15*time.Minute, "how long the code stays redeemable")
	_ = codeCmd.MarkFlagRequired("user")
}
