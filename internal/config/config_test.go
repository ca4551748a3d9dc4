package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	for _, key := range []string{
		"CORTEXD_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"CORTEXD_BASE_URL", "CORTEXD_MODEL", "CORTEXD_DB_PATH",
		"CORTEXD_RECALL_MODE", "CORTEXD_TELEGRAM_TOKEN", "CORTEXD_PORT",
	} {
		t.Setenv(key, "")
	}
	return tmpDir
}

func TestLoadConfigDefaults(t *testing.T) {
	tmpDir := setTestHome(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Provider.Model, DefaultModel)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Worker.StreamGroup != DefaultStreamGroup {
		t.Errorf("stream group = %q", cfg.Worker.StreamGroup)
	}
	if cfg.Memory.RecallMode != DefaultRecallMode {
		t.Errorf("recall mode = %q", cfg.Memory.RecallMode)
	}
	wantDB := filepath.Join(tmpDir, ".cortexd", DefaultDBFile)
	if cfg.Store.DBPath != wantDB {
		t.Errorf("db path = %q, want %q", cfg.Store.DBPath, wantDB)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := setTestHome(t)

	cfgDir := filepath.Join(tmpDir, ".cortexd")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(`{
		"provider": {"apiKey": "file-key", "model": "other-model"},
		"server": {"port": 9999},
		"memory": {"recallMode": "vector"}
	}`), 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "file-key" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "other-model" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Memory.RecallMode != "vector" {
		t.Errorf("recall mode = %q", cfg.Memory.RecallMode)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setTestHome(t)
	t.Setenv("CORTEXD_API_KEY", "env-key")
	t.Setenv("CORTEXD_MODEL", "env-model")
	t.Setenv("CORTEXD_PORT", "4567")
	t.Setenv("CORTEXD_TELEGRAM_TOKEN", "tg-token")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "env-model" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if cfg.Server.Port != 4567 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if !cfg.Notify.Telegram.Enabled || cfg.Notify.Telegram.Token != "tg-token" {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
}

func TestOpenAIKeySetsProviderType(t *testing.T) {
	setTestHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("type = %q, want openai", cfg.Provider.Type)
	}
	if cfg.Provider.APIKey != "sk-openai" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestAnthropicKeyDoesNotOverrideExplicit(t *testing.T) {
	setTestHome(t)
	t.Setenv("CORTEXD_API_KEY", "primary")
	t.Setenv("ANTHROPIC_API_KEY", "fallback")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "primary" {
		t.Errorf("api key = %q, want primary", cfg.Provider.APIKey)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	setTestHome(t)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "saved-key"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Provider.APIKey != "saved-key" {
		t.Errorf("api key = %q", loaded.Provider.APIKey)
	}
}
