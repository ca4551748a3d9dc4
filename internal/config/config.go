package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18890
	DefaultWorkerIntervalSec = 5
	DefaultReapAfterMin      = 5
	DefaultStreamBlockMs     = 5000
	DefaultStreamGroup       = "BRAIN_WORKERS"
	DefaultRecallMode        = "lexical"
	DefaultDreamCron         = "0 0 3 * * *"
	DefaultReviewScanCron    = "0 0 9 * * *"
	DefaultDBFile            = "cortexd.db"
)

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Server   ServerConfig   `json:"server"`
	Worker   WorkerConfig   `json:"worker"`
	Memory   MemoryConfig   `json:"memory"`
	Notify   NotifyConfig   `json:"notify"`
	Store    StoreConfig    `json:"store"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type WorkerConfig struct {
	IntervalSec   int    `json:"intervalSec"`
	ReapAfterMin  int    `json:"reapAfterMin"`
	StreamGroup   string `json:"streamGroup,omitempty"`
	StreamBlockMs int    `json:"streamBlockMs,omitempty"`
	DreamCron     string `json:"dreamCron,omitempty"`
	ReviewCron    string `json:"reviewCron,omitempty"`
	DreamsEnabled bool   `json:"dreamsEnabled"`
}

type MemoryConfig struct {
	RecallMode string          `json:"recallMode,omitempty"` // "lexical" or "vector"
	Embedding  EmbeddingConfig `json:"embedding"`
}

type EmbeddingConfig struct {
	Enabled   bool   `json:"enabled"`
	Provider  string `json:"provider,omitempty"` // "api" (default) or "ollama"
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chatId,omitempty"`
	Proxy   string `json:"proxy,omitempty"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{Model: DefaultModel},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Worker: WorkerConfig{
			IntervalSec:   DefaultWorkerIntervalSec,
			ReapAfterMin:  DefaultReapAfterMin,
			StreamGroup:   DefaultStreamGroup,
			StreamBlockMs: DefaultStreamBlockMs,
			DreamCron:     DefaultDreamCron,
			ReviewCron:    DefaultReviewScanCron,
		},
		Memory: MemoryConfig{
			RecallMode: DefaultRecallMode,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".cortexd")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("CORTEXD_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("CORTEXD_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("CORTEXD_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if dbPath := os.Getenv("CORTEXD_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if mode := os.Getenv("CORTEXD_RECALL_MODE"); mode != "" {
		cfg.Memory.RecallMode = mode
	}
	if key := os.Getenv("CORTEXD_EMBEDDING_API_KEY"); key != "" {
		cfg.Memory.Embedding.APIKey = key
	}
	if url := os.Getenv("CORTEXD_EMBEDDING_BASE_URL"); url != "" {
		cfg.Memory.Embedding.BaseURL = url
	}
	if model := os.Getenv("CORTEXD_EMBEDDING_MODEL"); model != "" {
		cfg.Memory.Embedding.Model = model
		cfg.Memory.Embedding.Enabled = true
	}
	if token := os.Getenv("CORTEXD_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
		cfg.Notify.Telegram.Enabled = true
	}
	if port := os.Getenv("CORTEXD_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if interval := os.Getenv("CORTEXD_WORKER_INTERVAL_SEC"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil {
			cfg.Worker.IntervalSec = parsed
		}
	}

	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Worker.IntervalSec <= 0 {
		cfg.Worker.IntervalSec = DefaultWorkerIntervalSec
	}
	if cfg.Worker.ReapAfterMin <= 0 {
		cfg.Worker.ReapAfterMin = DefaultReapAfterMin
	}
	if cfg.Worker.StreamGroup == "" {
		cfg.Worker.StreamGroup = DefaultStreamGroup
	}
	if cfg.Worker.StreamBlockMs <= 0 {
		cfg.Worker.StreamBlockMs = DefaultStreamBlockMs
	}
	if cfg.Worker.DreamCron == "" {
		cfg.Worker.DreamCron = DefaultDreamCron
	}
	if cfg.Worker.ReviewCron == "" {
		cfg.Worker.ReviewCron = DefaultReviewScanCron
	}
	if cfg.Memory.RecallMode == "" {
		cfg.Memory.RecallMode = DefaultRecallMode
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(ConfigDir(), DefaultDBFile)
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
