package main

import (
	"github.com/jrsteele09/carnotes-server/internal/config"
	"github.com/jrsteele09/carnotes-server/internal/logging"
	"github.com/spf13/cobra"
)

var (
	envFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "carnotes-server",
	Short: "Car Notes API and session server",
	Long: `carnotes-server runs the Car Notes authentication API.

Environment Variables:
  ACCESS_TOKEN_SECRET   Signing key for access tokens (required)
  REFRESH_TOKEN_SECRET  Signing key for refresh tokens (required, must differ)
  DATABASE_URL          PostgreSQL DSN (empty: in-memory store)
  REDIS_ADDR            Redis address for shared user locks (empty: in-process locks)
  PORT                  Listen port (default: 8080)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		c, err := config.Load(files...)
		if err != nil {
			return err
		}
		cfg = c
		logging.Setup(cfg.GetEnv(), cfg.GetLogLevel())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: .env when present)")
}
