package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/duynhne/identity-service/config"
	database "github.com/duynhne/identity-service/internal/core"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return errors.New("schema requires DATABASE_DRIVER=postgres")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := database.Connect(ctx, cfg.Database.URL, 1)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		log.Info().Msg("Schema applied")
		return nil
	},
}
