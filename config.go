package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const defaultMaxPacketBytes = 4 << 20

// MigrationConfig holds the full TOML-driven migration configuration.
type MigrationConfig struct {
	Source   SourceConfig   `toml:"source"`
	Target   TargetConfig   `toml:"target"`
	Settings SettingsConfig `toml:"settings"`
	Hooks    HooksConfig    `toml:"hooks"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

// SourceConfig identifies the source database engine and connection string.
type SourceConfig struct {
	Type   string `toml:"type"` // "mssql" or "sqlite"
	DSN    string `toml:"dsn"`
	Schema string `toml:"schema"` // SQL Server schema, default "dbo"
}

type TargetConfig struct {
	Type string `toml:"type"` // "mysql" or "postgres"
	DSN  string `toml:"dsn"`
}

type SettingsConfig struct {
	MaxPacketBytes         int64         `toml:"max_packet_bytes"`
	WhitelistedTables      []string      `toml:"whitelisted_tables"`
	ResetAction            string        `toml:"reset_action"` // drop|truncate|none
	CreateConstraints      bool          `toml:"create_constraints"`
	SnakeCaseIdentifiers   bool          `toml:"snake_case_identifiers"`
	MaxConcurrentTables    int           `toml:"max_concurrent_tables"`
	OnPopulatedTable       string        `toml:"on_populated_table"`       // skip|error
	NumericFractionPadding string        `toml:"numeric_fraction_padding"` // right|left
	BatchTimeout           time.Duration `toml:"batch_timeout"`
	Mappings               string        `toml:"mappings"` // path to a [[mappings]] file
}

type HooksConfig struct {
	BeforeData []string `toml:"before_data"`
	AfterAll   []string `toml:"after_all"`
}

// loadConfig reads a TOML config file and returns a MigrationConfig with
// defaults applied. ${VAR} references in DSNs are expanded from the
// environment, after loading envFile when it exists.
func loadConfig(path, envFile string) (*MigrationConfig, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := MigrationConfig{
		Source: SourceConfig{Schema: defaultMSSQLSchema},
		Settings: SettingsConfig{
			MaxPacketBytes:         defaultMaxPacketBytes,
			ResetAction:            string(ResetTruncate),
			OnPopulatedTable:       "skip",
			NumericFractionPadding: "right",
		},
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	cfg.Source.DSN = os.ExpandEnv(cfg.Source.DSN)
	cfg.Target.DSN = os.ExpandEnv(cfg.Target.DSN)

	if cfg.Settings.MaxConcurrentTables <= 0 {
		cfg.Settings.MaxConcurrentTables = defaultConcurrency()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *MigrationConfig) validate() error {
	switch c.Source.Type {
	case "mssql", "sqlite":
	case "":
		return fmt.Errorf("source.type is required (must be mssql or sqlite)")
	default:
		return fmt.Errorf("unsupported source type %q (must be mssql or sqlite)", c.Source.Type)
	}
	if c.Source.DSN == "" {
		return fmt.Errorf("source.dsn is required")
	}
	c.Source.Schema = strings.TrimSpace(c.Source.Schema)
	if c.Source.Type == "sqlite" && c.Source.Schema != defaultMSSQLSchema && c.Source.Schema != "" {
		return fmt.Errorf("source.schema is a SQL Server-only option")
	}

	switch c.Target.Type {
	case "mysql", "postgres":
	case "":
		return fmt.Errorf("target.type is required (must be mysql or postgres)")
	default:
		return fmt.Errorf("unsupported target type %q (must be mysql or postgres)", c.Target.Type)
	}
	if c.Target.DSN == "" {
		return fmt.Errorf("target.dsn is required")
	}

	s := &c.Settings
	if s.MaxPacketBytes <= reservedBatchBytes {
		return fmt.Errorf("settings.max_packet_bytes must be greater than %d", reservedBatchBytes)
	}
	if _, err := parseResetAction(s.ResetAction); err != nil {
		return fmt.Errorf("settings.%w", err)
	}
	switch s.OnPopulatedTable {
	case "skip", "error":
	default:
		return fmt.Errorf("settings.on_populated_table must be one of: skip, error")
	}
	switch s.NumericFractionPadding {
	case "right", "left":
	default:
		return fmt.Errorf("settings.numeric_fraction_padding must be one of: right, left")
	}
	if s.BatchTimeout < 0 {
		return fmt.Errorf("settings.batch_timeout must not be negative")
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *MigrationConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// loadMappings returns the configured mapping table, or the built-in one for
// the source/target pair.
func (c *MigrationConfig) loadMappings() (Mappings, error) {
	if c.Settings.Mappings != "" {
		return loadMappings(c.resolvePath(c.Settings.Mappings))
	}
	return builtinMappingsFor(c.Source.Type, c.Target.Type)
}

// migrationOptions converts the settings block into coordinator options.
func (c *MigrationConfig) migrationOptions() MigrationOptions {
	action, _ := parseResetAction(c.Settings.ResetAction)
	return MigrationOptions{
		ResetAction:            action,
		CreateConstraints:      c.Settings.CreateConstraints,
		SnakeCaseIdentifiers:   c.Settings.SnakeCaseIdentifiers,
		MaxConcurrentTables:    c.Settings.MaxConcurrentTables,
		MaxPacketBytes:         c.Settings.MaxPacketBytes,
		WhitelistedTables:      c.Settings.WhitelistedTables,
		OnPopulatedTable:       c.Settings.OnPopulatedTable,
		NumericFractionPadding: c.Settings.NumericFractionPadding,
		BatchTimeout:           c.Settings.BatchTimeout,
	}
}

// poolSize is the connection pool capacity per engine. Every running table
// may hold a connection while requesting another, so the pool needs one
// connection beyond the table concurrency.
func (c *MigrationConfig) poolSize() int {
	return c.Settings.MaxConcurrentTables + 1
}

func defaultConcurrency() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
