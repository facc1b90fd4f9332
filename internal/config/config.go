package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Source      SourceConfig      `mapstructure:"source"`
	Destination DestinationConfig `mapstructure:"destination"`
	Migration   MigrationConfig   `mapstructure:"migration"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	MCP         MCPConfig         `mapstructure:"mcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MCPConfig controls the Model Context Protocol endpoint for AI agents
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"` // e.g. ":8081"
}

type DatabaseConfig struct {
	Type                   string `mapstructure:"type"` // "sqlite", "postgres" or "sqlserver"
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
}

// SourceConfig defines where teams are read from
type SourceConfig struct {
	Type         string `mapstructure:"type"`         // "github" or "azuredevops"
	BaseURL      string `mapstructure:"base_url"`     // API base URL
	Token        string `mapstructure:"token"`        // Authentication token (PAT)
	Organization string `mapstructure:"organization"` // Organization name (required for Azure DevOps)

	// GitHub App authentication (optional, used for read-only calls)
	AppID             int64  `mapstructure:"app_id"`
	AppPrivateKey     string `mapstructure:"app_private_key"` // file path or inline PEM
	AppInstallationID int64  `mapstructure:"app_installation_id"`

	// Permission granted on the destination for Azure DevOps project repositories,
	// which have no per-team permission of their own.
	ADODefaultPermission string `mapstructure:"ado_default_permission"`
}

// DestinationConfig defines the GitHub organization teams are created in
type DestinationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`

	AppID             int64  `mapstructure:"app_id"`
	AppPrivateKey     string `mapstructure:"app_private_key"`
	AppInstallationID int64  `mapstructure:"app_installation_id"`
}

// MigrationConfig controls the team migration orchestrator
type MigrationConfig struct {
	Workers               int            `mapstructure:"workers"`                 // Number of teams processed in parallel
	RequestsPerSecond     float64        `mapstructure:"requests_per_second"`     // Client-side pacing of GitHub calls
	MaxDisplayedErrors    int            `mapstructure:"max_displayed_errors"`    // Errors returned in a progress snapshot
	RemovePATOwner        bool           `mapstructure:"remove_pat_owner"`        // Drop the token owner from newly created teams
	ResyncIntervalMinutes int            `mapstructure:"resync_interval_minutes"` // 0 disables the scheduled re-sync
	TeamSync              TeamSyncConfig `mapstructure:"team_sync"`
}

// TeamSyncConfig decides which source repositories count as eligible
type TeamSyncConfig struct {
	IncludeArchived     bool     `mapstructure:"include_archived"`
	ExcludeVisibilities []string `mapstructure:"exclude_visibilities"`
	Workers             int      `mapstructure:"workers"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// Load reads configuration from .env, config.yaml and GHMIG_* environment
// variables, in increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("GHMIG")
	// migration.team_sync.include_archived -> GHMIG_MIGRATION_TEAM_SYNC_INCLUDE_ARCHIVED
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Migration.TeamSync.ExcludeVisibilities = parseStringSlice(cfg.Migration.TeamSync.ExcludeVisibilities)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.dsn", "./data/migrator.db")
	viper.SetDefault("database.max_open_conns", 0)
	viper.SetDefault("database.max_idle_conns", 0)
	viper.SetDefault("database.conn_max_lifetime_seconds", 0)
	viper.SetDefault("source.type", "github")
	viper.SetDefault("source.base_url", "https://api.github.com")
	viper.SetDefault("source.ado_default_permission", "push")
	viper.SetDefault("destination.base_url", "https://api.github.com")

	// Unmarshal only sees keys viper already knows, so every key that may come
	// from the environment alone needs a default, even an empty one.
	for _, prefix := range []string{"source", "destination"} {
		viper.SetDefault(prefix+".token", "")
		viper.SetDefault(prefix+".app_id", 0)
		viper.SetDefault(prefix+".app_private_key", "")
		viper.SetDefault(prefix+".app_installation_id", 0)
	}
	viper.SetDefault("source.organization", "")

	viper.SetDefault("migration.workers", 5)
	viper.SetDefault("migration.requests_per_second", 10.0)
	viper.SetDefault("migration.max_displayed_errors", 50)
	viper.SetDefault("migration.remove_pat_owner", true)
	viper.SetDefault("migration.resync_interval_minutes", 0)
	viper.SetDefault("migration.team_sync.include_archived", false)
	viper.SetDefault("migration.team_sync.exclude_visibilities", []string{})
	viper.SetDefault("migration.team_sync.workers", 5)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_file", "./logs/migrator.log")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
	viper.SetDefault("mcp.enabled", false)
	viper.SetDefault("mcp.address", ":8081")
}

// Validate checks the values that would otherwise fail far from where they were set.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Type) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "sqlserver", "mssql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	switch c.Source.Type {
	case "github", "azuredevops":
	default:
		return fmt.Errorf("unsupported source type: %s", c.Source.Type)
	}

	if c.Migration.Workers < 1 {
		return fmt.Errorf("migration.workers must be at least 1, got %d", c.Migration.Workers)
	}
	if c.Migration.MaxDisplayedErrors < 0 {
		return fmt.Errorf("migration.max_displayed_errors must not be negative")
	}
	if c.Migration.ResyncIntervalMinutes < 0 {
		return fmt.Errorf("migration.resync_interval_minutes must not be negative")
	}
	return nil
}

// parseStringSlice handles slices that arrive from environment variables as a
// single comma-separated or bracketed string.
func parseStringSlice(input []string) []string {
	if len(input) == 0 {
		return input
	}

	if len(input) == 1 {
		value := strings.TrimSpace(input[0])
		if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
			value = strings.TrimSpace(value[1 : len(value)-1])
			value = strings.NewReplacer("\"", "", "'", "").Replace(value)
		}
		if value == "" {
			return []string{}
		}
		input = strings.Split(value, ",")
	}

	result := make([]string, 0, len(input))
	for _, item := range input {
		trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(item), "[]\"'"))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
