package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/casefile"
	"github.com/aretw0/casefile/internal/config"
	"github.com/aretw0/casefile/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "casefile",
	Short: "casefile runs the email and address collection flow of inbound calls",
	Long: `casefile drives inbound voice calls through a fixed collection flow,
validating emails and addresses through external vendors, recording every
consent decision and caching what each caller confirmed.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to casefile.yaml (default ./casefile.yaml when present)")
	rootCmd.PersistentFlags().String("driver", "", "Storage driver: memory, sqlite or redis")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for call state and locks")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(&cfg, flags)
	return cfg, nil
}

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if v, _ := flags.GetString("driver"); flags.Changed("driver") {
		cfg.Storage.Driver = v
	}
	if v, _ := flags.GetString("db"); flags.Changed("db") {
		cfg.Storage.SQLitePath = v
	}
	if v, _ := flags.GetString("redis"); flags.Changed("redis") {
		cfg.Storage.RedisAddr = v
		if !flags.Changed("driver") {
			cfg.Storage.Driver = config.DriverRedis
		}
	}
	if v, _ := flags.GetString("log-level"); flags.Changed("log-level") {
		cfg.Log.Level = v
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

// openApp loads config, reports missing vendor credentials and wires the app.
func openApp(cmd *cobra.Command) (*casefile.App, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.Warn("Vendor degraded to unknown", "reason", w)
	}

	app, err := casefile.New(cfg, casefile.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casefile: %w", err)
	}
	return app, nil
}
