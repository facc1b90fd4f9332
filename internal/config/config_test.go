package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	setDefaults()

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"server.port", 8080},
		{"database.type", "sqlite"},
		{"database.dsn", "./data/migrator.db"},
		{"source.ado_default_permission", "push"},
		{"migration.workers", 5},
		{"migration.max_displayed_errors", 50},
		{"migration.remove_pat_owner", true},
		{"migration.team_sync.include_archived", false},
		{"logging.level", "info"},
		{"logging.format", "json"},
		{"logging.output_file", "./logs/migrator.log"},
		{"logging.max_size", 100},
		{"logging.max_backups", 3},
		{"logging.max_age", 28},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := viper.Get(tt.key)
			if got != tt.expected {
				t.Errorf("setDefaults() for %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

// chdirTemp switches into a fresh directory for the duration of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	currentDir, err := os.Getwd()
	require.NoError(t, err)

	tmpDir := t.TempDir()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(currentDir) })
	return tmpDir
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := chdirTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "configs"), 0755))

	configContent := `
server:
  port: 9090

database:
  type: postgres
  dsn: postgres://localhost/migrator
  max_open_conns: 10

source:
  type: azuredevops
  base_url: https://dev.azure.com/contoso
  organization: contoso
  token: ado-token

destination:
  base_url: https://ghes.example.com/api/v3
  token: dest-token

migration:
  workers: 8
  remove_pat_owner: false
  team_sync:
    include_archived: true
    exclude_visibilities: [public]

logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "configs", "config.yaml"), []byte(configContent), 0644))

	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, "azuredevops", cfg.Source.Type)
	assert.Equal(t, "contoso", cfg.Source.Organization)
	assert.Equal(t, "push", cfg.Source.ADODefaultPermission)
	assert.Equal(t, "https://ghes.example.com/api/v3", cfg.Destination.BaseURL)
	assert.Equal(t, 8, cfg.Migration.Workers)
	assert.False(t, cfg.Migration.RemovePATOwner)
	assert.True(t, cfg.Migration.TeamSync.IncludeArchived)
	assert.Equal(t, []string{"public"}, cfg.Migration.TeamSync.ExcludeVisibilities)
	assert.Equal(t, 50, cfg.Migration.MaxDisplayedErrors)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	chdirTemp(t)
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err, "Load() should succeed without config file")
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Migration.Workers)
	assert.False(t, cfg.MCP.Enabled)
	assert.Equal(t, ":8081", cfg.MCP.Address)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := chdirTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "configs"), 0755))

	invalidYAML := `
server:
  port: not-a-number
  invalid yaml content [[[
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "configs", "config.yaml"), []byte(invalidYAML), 0644))

	viper.Reset()
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadConfig_EnvironmentVariables(t *testing.T) {
	chdirTemp(t)
	viper.Reset()

	t.Setenv("GHMIG_MIGRATION_WORKERS", "3")
	t.Setenv("GHMIG_DESTINATION_TOKEN", "env-token")
	t.Setenv("GHMIG_MIGRATION_TEAM_SYNC_EXCLUDE_VISIBILITIES", "public,internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Migration.Workers)
	assert.Equal(t, "env-token", cfg.Destination.Token)
	assert.Equal(t, []string{"public", "internal"}, cfg.Migration.TeamSync.ExcludeVisibilities)
}

func TestLoadConfig_CredentialsFromEnvironment(t *testing.T) {
	chdirTemp(t)
	viper.Reset()

	t.Setenv("GHMIG_SOURCE_TYPE", "azuredevops")
	t.Setenv("GHMIG_SOURCE_TOKEN", "ado-pat")
	t.Setenv("GHMIG_SOURCE_ORGANIZATION", "contoso")
	t.Setenv("GHMIG_DESTINATION_APP_ID", "12345")
	t.Setenv("GHMIG_DESTINATION_APP_PRIVATE_KEY", "/keys/app.pem")
	t.Setenv("GHMIG_DESTINATION_APP_INSTALLATION_ID", "67890")
	t.Setenv("GHMIG_DATABASE_MAX_OPEN_CONNS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "azuredevops", cfg.Source.Type)
	assert.Equal(t, "ado-pat", cfg.Source.Token)
	assert.Equal(t, "contoso", cfg.Source.Organization)
	assert.Equal(t, int64(12345), cfg.Destination.AppID)
	assert.Equal(t, "/keys/app.pem", cfg.Destination.AppPrivateKey)
	assert.Equal(t, int64(67890), cfg.Destination.AppInstallationID)
	assert.Empty(t, cfg.Destination.Token)
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	tmpDir := chdirTemp(t)
	viper.Reset()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("GHMIG_SERVER_PORT=7070\n"), 0644))
	t.Cleanup(func() { _ = os.Unsetenv("GHMIG_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database:  DatabaseConfig{Type: "sqlite"},
			Source:    SourceConfig{Type: "github"},
			Migration: MigrationConfig{Workers: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"sqlserver alias", func(c *Config) { c.Database.Type = "mssql" }, false},
		{"unknown database", func(c *Config) { c.Database.Type = "mongo" }, true},
		{"gitlab source", func(c *Config) { c.Source.Type = "gitlab" }, true},
		{"zero workers", func(c *Config) { c.Migration.Workers = 0 }, true},
		{"negative error cap", func(c *Config) { c.Migration.MaxDisplayedErrors = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseStringSlice(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"empty array", []string{}, []string{}},
		{"single value", []string{"public"}, []string{"public"}},
		{"comma-separated values", []string{"public,internal"}, []string{"public", "internal"}},
		{"JSON array string", []string{`["public","internal"]`}, []string{"public", "internal"}},
		{"single quotes", []string{`['public','private']`}, []string{"public", "private"}},
		{"spaces", []string{"public , internal"}, []string{"public", "internal"}},
		{"already parsed array", []string{"public", "internal"}, []string{"public", "internal"}},
		{"empty string", []string{""}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseStringSlice(tt.input))
		})
	}
}
