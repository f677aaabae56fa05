package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndResolvesPaths(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {},
		"providers": {"gemini": {"model": "gemini-2.5-flash", "api_key": "k"}},
		"ai": {"provider": "gemini"},
		"databases": {"sqlite3": {"dsn": "medo.db"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.BasicConfig.ServerAddress)
	assert.Equal(t, "sqlite3", cfg.BasicConfig.Database)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "ar-SA", cfg.Speech.LanguageCode)
	assert.True(t, filepath.IsAbs(cfg.Databases["sqlite3"].DSN))
	assert.True(t, filepath.IsAbs(cfg.Storage.LocalDir))
}

func TestLoadEnvOverridesProviderKey(t *testing.T) {
	t.Setenv("MEDOAI_AI_API_KEY", "from-env")
	path := writeConfig(t, `{
		"providers": {"openai": {"model": "gpt-4o-mini"}},
		"ai": {"provider": "openai"},
		"databases": {"sqlite3": {"dsn": ":memory:"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Providers["openai"].APIKey)
}

func TestValidateRejectsIncompleteBackends(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{
			name: "missing provider",
			cfg: Config{
				BasicConfig: BasicConfig{Database: "sqlite3"},
				Databases:   map[string]DatabaseConfig{"sqlite3": {DSN: "x"}},
				Storage:     StorageConfig{Backend: "local"},
			},
		},
		{
			name: "minio without bucket",
			cfg: Config{
				BasicConfig: BasicConfig{Database: "sqlite3"},
				Databases:   map[string]DatabaseConfig{"sqlite3": {DSN: "x"}},
				Providers:   map[string]ProviderConfig{"gemini": {}},
				AI:          AIConfig{Provider: "gemini"},
				Storage:     StorageConfig{Backend: "minio", Endpoint: "localhost:9000"},
			},
		},
		{
			name: "unknown database",
			cfg: Config{
				BasicConfig: BasicConfig{Database: "postgres"},
				Providers:   map[string]ProviderConfig{"gemini": {}},
				AI:          AIConfig{Provider: "gemini"},
				Storage:     StorageConfig{Backend: "local"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}
