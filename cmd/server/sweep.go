package main

import (
	"fmt"
	"time"

	"github.com/dom/dataroom/internal/config"
	"github.com/dom/dataroom/internal/logging"
	"github.com/dom/dataroom/internal/repository/database"
	"github.com/dom/dataroom/internal/service"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"
)

func newSweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove abandoned partial uploads and expired sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logging.New(cfg.LogLevel, cfg.LogFormat)

			db, err := database.NewConnection(cfg.DatabaseURL, logger.Warn)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}

			infra, err := service.NewInfrastructure(cmd.Context(), cfg, nil, log)
			if err != nil {
				return err
			}
			services := service.NewServices(database.NewRepositories(db), infra, cfg, log)

			partials, err := infra.Store.SweepPartials(olderThan)
			if err != nil {
				return err
			}
			sessions, err := services.Tokens.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d partial %s older than %s and %d expired %s.\n",
				partials, plural(partials, "file", "files"), olderThan,
				sessions, plural(int(sessions), "session", "sessions"))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", stalePartialAge, "only remove partial files not modified for this long")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
