package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pauljmillar/survey-sub001/internal/database"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)

			// Open applies migrations.
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := database.Version(db)
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			logger.Info("database migrated", "db", cfg.DBPath, "version", v)
			return nil
		},
	}
}
