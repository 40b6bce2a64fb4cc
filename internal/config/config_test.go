package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsCarryNoSecrets(t *testing.T) {
	t.Setenv(configPathEnv, "")
	for _, env := range []string{geminiAPIKeyEnv, chatGPTAPIKeyEnv, databaseDSNEnv, telegramTokenEnv, mapsAPIKeyEnv, screenshotAPIKeyEnv} {
		t.Setenv(env, "")
	}

	cfg := Load()

	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Empty(t, cfg.ChatGPT.APIKey)
	assert.Empty(t, cfg.Database.DSN)
	assert.False(t, cfg.RemoteEnabled())
	assert.Equal(t, 60*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "gemini", cfg.Gateway.Provider)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prospector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
gateway:
  provider: chatgpt
  requestsPerMinute: 5
database:
  dsn: postgres://file@db/prospector
sync:
  interval: 30s
site:
  previewBaseUrl: https://preview.example.test/sites
`), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env@db/prospector")
	t.Setenv(syncIntervalEnv, "")
	t.Setenv(logLevelEnv, "")

	cfg := Load()

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "chatgpt", cfg.Gateway.Provider)
	assert.Equal(t, 5, cfg.Gateway.RequestsPerMinute)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "postgres://env@db/prospector", cfg.Database.DSN)
	assert.True(t, cfg.RemoteEnabled())
	assert.Equal(t, "https://preview.example.test/sites", cfg.Site.PreviewBaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatGPT.Model)
}

func TestLoadIgnoresInvalidSyncInterval(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(syncIntervalEnv, "soon")

	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.Sync.Interval)
}

func TestLoadFallsBackOnUnreadableFile(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv(syncIntervalEnv, "")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestGenerationModelsFollowProvider(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	model, code := cfg.GenerationModels()
	assert.Equal(t, "gemini-2.5-flash", model)
	assert.Equal(t, "gemini-2.5-pro", code)

	cfg.Gateway.Provider = "chatgpt"
	cfg.ChatGPT.CodeModel = "gpt-4o"
	model, code = cfg.GenerationModels()
	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, "gpt-4o", code)
}
