package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pauljmillar/survey-sub001/internal/backup"
	"github.com/pauljmillar/survey-sub001/internal/config"
	"github.com/pauljmillar/survey-sub001/internal/database"
)

func backupManager(cmd *cobra.Command) (*backup.Manager, *config.Config, func(), error) {
	cfg := mustConfig(cmd)
	logger := commonRun(cfg)
	if cfg.Backup.Passphrase == "" {
		return nil, nil, nil, errors.New("backup passphrase is not set")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := backup.NewManager(backup.S3Config{
		Endpoint:  cfg.Backup.Endpoint,
		Bucket:    cfg.Backup.Bucket,
		Region:    cfg.Backup.Region,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
		Prefix:    cfg.Backup.Prefix,
	}, db, logger)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return m, cfg, func() { db.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func backupCommand() *cobra.Command {
	var skipPrune bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload an encrypted ledger snapshot and prune expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, closeDB, err := backupManager(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			obj, err := m.Run(cmd.Context(), cfg.Backup.Passphrase)
			if err != nil {
				return err
			}
			if !skipPrune {
				if _, err := m.Prune(cmd.Context(), cfg.Backup.Retention); err != nil {
					return fmt.Errorf("prune: %w", err)
				}
			}
			return printJSON(obj)
		},
	}
	cmd.Flags().BoolVar(&skipPrune, "no-prune", false, "keep snapshots past the retention period")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, closeDB, err := backupManager(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			objects, err := m.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(objects)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <key> <destination>",
		Short: "Download, decrypt and verify a snapshot into a new file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, closeDB, err := backupManager(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			version, err := m.Restore(cmd.Context(), args[0], cfg.Backup.Passphrase, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("restored %s to %s (schema version %d)\n", args[0], args[1], version)
			return nil
		},
	})
	return cmd
}
