package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pauljmillar/survey-sub001/internal/config"
	"github.com/pauljmillar/survey-sub001/internal/logging"
)

const programName = "panelpoints"

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// commonRun builds the process logger from the loaded config.
func commonRun(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	logger := logging.Setup(level, cfg.LogFormat)
	logger.Debug("version: "+version, "component", programName)
	return logger
}

func mustConfig(cmd *cobra.Command) *config.Config {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		slog.Error("no config found in context")
		os.Exit(1)
	}
	return cfg
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Panel points ledger and settlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, mustConfig(cmd))
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to YAML config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(reconcileCommand())
	rootCmd.AddCommand(backupCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// The version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", programName, version)
		},
	}
}
