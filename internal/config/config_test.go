package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "CONFIG_FILE", "CSV_PATH", "REORDER_DEFAULT", "LLM_API_KEY", "OPENAI_API_KEY",
		"LLM_MODEL", "LLM_BASE_URL", "CHAT_TIMEOUT", "CHAT_MAX_RETRIES", "CHAT_RATE_PER_MINUTE",
		"CONTEXT_MAX_CHARS", "CONTEXT_MAX_ROWS", "SERVER_HOST", "SERVER_PORT", "SESSION_TTL",
		"ALERT_WATCH", "ALERT_WEBHOOK_URL", "EMAIL_ALERTS", "EMAIL_MOCK_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultCSVPath, s.CSVPath)
	assert.Equal(t, DefaultModel, s.ModelName)
	assert.Equal(t, 60*time.Second, s.ChatTimeout)
	assert.Equal(t, "127.0.0.1:8501", s.Addr())
	assert.Empty(t, s.APIKey)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CSV_PATH", "/srv/stock.csv")
	t.Setenv("REORDER_DEFAULT", "5")
	t.Setenv("LLM_API_KEY", "  sk-test  ")
	t.Setenv("CHAT_TIMEOUT", "15s")
	t.Setenv("ALERT_WATCH", "true")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/stock.csv", s.CSVPath)
	assert.Equal(t, 5, s.ReorderDefault)
	assert.Equal(t, "sk-test", s.APIKey)
	assert.Equal(t, 15*time.Second, s.ChatTimeout)
	assert.True(t, s.AlertWatch)
}

func TestEnvironmentSuffixWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("CSV_PATH", "dev.csv")
	t.Setenv("CSV_PATH_PROD", "prod.csv")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod.csv", s.CSVPath)
}

func TestOpenAIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", s.APIKey)
}

func TestConfigFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "inventory.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
csv_path = "from-file.csv"
model_name = "file-model"
reorder_default = 3
chat_timeout = "5s"
context_max_rows = 10
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_MODEL", "env-model")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file.csv", s.CSVPath)
	assert.Equal(t, "env-model", s.ModelName)
	assert.Equal(t, 3, s.ReorderDefault)
	assert.Equal(t, 5*time.Second, s.ChatTimeout)
	assert.Equal(t, 10, s.ContextMaxRows)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REORDER_DEFAULT", "lots")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REORDER_DEFAULT")

	clearEnv(t)
	t.Setenv("REORDER_DEFAULT", "-1")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reorder_default")

	clearEnv(t)
	t.Setenv("CONTEXT_MAX_CHARS", "10")
	_, err = Load()
	require.Error(t, err)
}

func TestEmptyDBPathDisablesPersistence(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "")

	s, err := Load()
	require.NoError(t, err)
	assert.Empty(t, s.DBPath)
}

func TestCompanionFilesAndSecureCookie(t *testing.T) {
	clearEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSuppliers, s.SuppliersCSVPath)
	assert.Equal(t, DefaultSales, s.SalesCSVPath)
	assert.False(t, s.SessionSecureCookie)

	t.Setenv("SUPPLIERS_CSV_PATH", "/srv/suppliers.csv")
	t.Setenv("SALES_CSV_PATH", "")
	t.Setenv("SESSION_SECURE_COOKIE", "true")

	s, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/suppliers.csv", s.SuppliersCSVPath)
	assert.Empty(t, s.SalesCSVPath, "an empty value turns sales off")
	assert.True(t, s.SessionSecureCookie)
}
