package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	envFile     string
	verbose     bool
	quiet       bool
	dropTables  bool
	keepTables  bool
	constraints bool
	snakeCase   bool
	parallelism int
)

var rootCmd = &cobra.Command{
	Use:           "sqlferry [config.toml]",
	Short:         "SQL Server or SQLite to MySQL or PostgreSQL schema and data migration tool",
	Args:          cobra.MaximumNArgs(1),
	Version:       versionString(),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runMigration,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "path to migration TOML config file")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before ${VAR} expansion of DSNs")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	f.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	f.BoolVarP(&dropTables, "drop", "d", false, "drop destination tables before migrating")
	f.BoolVar(&keepTables, "keep", false, "leave existing destination tables untouched")
	f.BoolVarP(&constraints, "constraints", "c", false, "create constraints after all tables are copied")
	f.BoolVarP(&snakeCase, "format", "f", false, "snake_case table and column names")
	f.IntVarP(&parallelism, "parallelism", "p", 0, "maximum tables migrated concurrently")
	rootCmd.MarkFlagsMutuallyExclusive("drop", "keep")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigration(cmd *cobra.Command, args []string) error {
	// Positional arg takes precedence over --config.
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: sqlferry <config.toml> or sqlferry --config <config.toml>")
	}

	cfg, err := loadConfig(cfgPath, envFile)
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}

	log := setupLogging(verbose, quiet, os.Stderr)
	ctx := cmd.Context()
	start := time.Now()

	opts := cfg.migrationOptions()
	log.Infof("sqlferry %s: %s → %s", versionString(), cfg.Source.Type, cfg.Target.Type)
	log.Debugf(
		"config: reset_action=%s create_constraints=%t snake_case_identifiers=%t max_concurrent_tables=%d max_packet_bytes=%d batch_timeout=%s",
		opts.ResetAction, opts.CreateConstraints, opts.SnakeCaseIdentifiers,
		opts.MaxConcurrentTables, opts.MaxPacketBytes, opts.BatchTimeout,
	)

	mappings, err := cfg.loadMappings()
	if err != nil {
		return err
	}

	log.Debugf("connecting to %s source...", cfg.Source.Type)
	source, err := openSourceDB(ctx, cfg.Source, cfg.poolSize())
	if err != nil {
		return err
	}
	defer source.Close()

	log.Debugf("connecting to %s target...", cfg.Target.Type)
	target, err := openTargetDB(ctx, cfg.Target, cfg.poolSize())
	if err != nil {
		return err
	}
	defer target.Close()

	reportSourceObjects(ctx, source, log)

	hooks := newHookRunner(target, cfg.Hooks, cfg.configDir, log)
	m := NewMigrator(source, target, mappings, opts, hooks, log)
	if _, err := m.Run(ctx); err != nil {
		return err
	}

	log.Infof("migration completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// applyFlagOverrides lets explicitly set CLI flags win over the config file.
func applyFlagOverrides(cmd *cobra.Command, cfg *MigrationConfig) error {
	flags := cmd.Flags()
	if flags.Changed("drop") && dropTables {
		cfg.Settings.ResetAction = string(ResetDrop)
	}
	if flags.Changed("keep") && keepTables {
		cfg.Settings.ResetAction = string(ResetNone)
	}
	if flags.Changed("constraints") {
		cfg.Settings.CreateConstraints = constraints
	}
	if flags.Changed("format") {
		cfg.Settings.SnakeCaseIdentifiers = snakeCase
	}
	if flags.Changed("parallelism") {
		if parallelism < 1 {
			return fmt.Errorf("--parallelism must be at least 1")
		}
		cfg.Settings.MaxConcurrentTables = parallelism
	}
	return nil
}
