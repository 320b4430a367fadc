package main

import (
	"github.com/jrsteele09/carnotes-server/users/postgres"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := cfg.GetDatabaseURL()
		if dsn == "" {
			return errors.New("DATABASE_URL is required")
		}

		db, err := openDB(cmd.Context(), dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		log.Info().Msg("database migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
