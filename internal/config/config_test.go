package config

import (
	"database/sql"
	"os"
	"testing"

	"github.com/aristath/sentinel/internal/modules/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestLoadUsesEnvironmentOverridesAndDefaults(t *testing.T) {
	dataDir := t.TempDir()

	t.Setenv("TRADER_DATA_DIR", "")
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("BROKER_API_KEY", "broker-key")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("BACKUP_RETENTION_DAYS", "14")

	cfg, err := Load(dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "broker-key", cfg.BrokerAPIKey)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, 14, cfg.BackupRetentionDays)
}

func TestLoadDefaultsWhenEnvironmentUnset(t *testing.T) {
	dataDir := t.TempDir()

	for _, key := range []string{"GO_PORT", "DEV_MODE", "BROKER_API_KEY", "LLM_PROVIDER", "BACKUP_RETENTION_DAYS"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}

	cfg, err := Load(dataDir)
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "", cfg.BrokerAPIKey)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, 30, cfg.BackupRetentionDays)
}

func newTestSettingsRepo(t *testing.T) *settings.Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT
	)`)
	require.NoError(t, err)

	return settings.NewRepository(db, zerolog.Nop())
}

func TestUpdateFromSettingsOverridesNonEmptyValues(t *testing.T) {
	repo := newTestSettingsRepo(t)
	require.NoError(t, repo.Set("broker_api_key", "from-settings-db", nil))

	cfg := &Config{BrokerAPIKey: "from-env", LLMProvider: "openai"}
	require.NoError(t, cfg.UpdateFromSettings(repo))

	assert.Equal(t, "from-settings-db", cfg.BrokerAPIKey)
	assert.Equal(t, "openai", cfg.LLMProvider, "unset settings keys should not clobber the env-sourced value")
}

func TestUpdateFromSettingsLeavesEnvValueWhenSettingEmpty(t *testing.T) {
	repo := newTestSettingsRepo(t)
	require.NoError(t, repo.Set("broker_api_secret", "", nil))

	cfg := &Config{BrokerAPISecret: "from-env"}
	require.NoError(t, cfg.UpdateFromSettings(repo))

	assert.Equal(t, "from-env", cfg.BrokerAPISecret)
}

func TestValidateAlwaysSucceeds(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate())
}
