package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultProvider        = "api"
	DefaultAPIType         = "openai"
	DefaultAPIEndpoint     = "https://api.openai.com/v1"
	DefaultAPIModel        = "gpt-4o-mini"
	DefaultOllamaEndpoint  = "http://localhost:11434"
	DefaultOllamaModel     = "llava"
	DefaultIntervalMS      = 1000
	DefaultCompressQuality = 80
	DefaultChangeThreshold = 0.95
	DefaultSummaryLimit    = 8
	DefaultDetailLimit     = 2
	DefaultAlertCooldown   = 120
	DefaultAlertConfidence = 0.6
	DefaultRetentionDays   = 7
	DefaultMaxScreenshots  = 10000
	DefaultMaxContextChars = 10000
)

// Config is the full engine configuration. One immutable snapshot is taken
// per scheduler tick; live changes only take effect at the next tick.
type Config struct {
	Model   ModelConfig   `json:"model"`
	Capture CaptureConfig `json:"capture"`
	Storage StorageConfig `json:"storage"`
	Notify  NotifyConfig  `json:"notify"`
}

type ModelConfig struct {
	// Provider selects the backend family: "api" or "ollama".
	Provider string       `json:"provider"`
	API      APIConfig    `json:"api"`
	Ollama   OllamaConfig `json:"ollama"`
}

type APIConfig struct {
	// Type selects the request shape: "openai", "claude" or "custom".
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type OllamaConfig struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
}

type CaptureConfig struct {
	Enabled                  bool    `json:"enabled"`
	IntervalMS               int64   `json:"interval_ms"`
	CompressQuality          int     `json:"compress_quality"`
	SkipUnchanged            *bool   `json:"skip_unchanged,omitempty"`
	ChangeThreshold          float64 `json:"change_threshold"`
	RecentSummaryLimit       int     `json:"recent_summary_limit"`
	RecentDetailLimit        int     `json:"recent_detail_limit"`
	AlertCooldownSeconds     int     `json:"alert_cooldown_seconds"`
	AlertConfidenceThreshold float64 `json:"alert_confidence_threshold"`
}

// SkipUnchangedEnabled reports the skip flag with its default applied.
func (c CaptureConfig) SkipUnchangedEnabled() bool {
	if c.SkipUnchanged == nil {
		return true
	}
	return *c.SkipUnchanged
}

type StorageConfig struct {
	RetentionDays   int `json:"retention_days"`
	MaxScreenshots  int `json:"max_screenshots"`
	MaxContextChars int `json:"max_context_chars"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

func DefaultConfig() *Config {
	enabled := true
	return &Config{
		Model: ModelConfig{
			Provider: DefaultProvider,
			API: APIConfig{
				Type:     DefaultAPIType,
				Endpoint: DefaultAPIEndpoint,
				Model:    DefaultAPIModel,
			},
			Ollama: OllamaConfig{
				Endpoint: DefaultOllamaEndpoint,
				Model:    DefaultOllamaModel,
			},
		},
		Capture: CaptureConfig{
			Enabled:                  true,
			IntervalMS:               DefaultIntervalMS,
			CompressQuality:          DefaultCompressQuality,
			SkipUnchanged:            &enabled,
			ChangeThreshold:          DefaultChangeThreshold,
			RecentSummaryLimit:       DefaultSummaryLimit,
			RecentDetailLimit:        DefaultDetailLimit,
			AlertCooldownSeconds:     DefaultAlertCooldown,
			AlertConfidenceThreshold: DefaultAlertConfidence,
		},
		Storage: StorageConfig{
			RetentionDays:   DefaultRetentionDays,
			MaxScreenshots:  DefaultMaxScreenshots,
			MaxContextChars: DefaultMaxContextChars,
		},
	}
}

// Normalize fills zero values with defaults and clamps out-of-range fields.
// A sparse config loaded from disk normalizes to the same value as the full
// form it was built from.
func (c *Config) Normalize() {
	if c.Model.Provider == "" {
		c.Model.Provider = DefaultProvider
	}
	if c.Model.API.Type == "" {
		c.Model.API.Type = DefaultAPIType
	}
	if c.Model.API.Endpoint == "" {
		c.Model.API.Endpoint = DefaultAPIEndpoint
	}
	if c.Model.API.Model == "" {
		c.Model.API.Model = DefaultAPIModel
	}
	if c.Model.Ollama.Endpoint == "" {
		c.Model.Ollama.Endpoint = DefaultOllamaEndpoint
	}
	if c.Model.Ollama.Model == "" {
		c.Model.Ollama.Model = DefaultOllamaModel
	}
	if c.Capture.IntervalMS <= 0 {
		c.Capture.IntervalMS = DefaultIntervalMS
	}
	if c.Capture.CompressQuality <= 0 || c.Capture.CompressQuality > 100 {
		c.Capture.CompressQuality = DefaultCompressQuality
	}
	if c.Capture.SkipUnchanged == nil {
		enabled := true
		c.Capture.SkipUnchanged = &enabled
	}
	if c.Capture.ChangeThreshold <= 0 || c.Capture.ChangeThreshold > 1 {
		c.Capture.ChangeThreshold = DefaultChangeThreshold
	}
	if c.Capture.RecentSummaryLimit <= 0 {
		c.Capture.RecentSummaryLimit = DefaultSummaryLimit
	}
	if c.Capture.RecentDetailLimit <= 0 {
		c.Capture.RecentDetailLimit = DefaultDetailLimit
	}
	if c.Capture.AlertCooldownSeconds <= 0 {
		c.Capture.AlertCooldownSeconds = DefaultAlertCooldown
	}
	if c.Capture.AlertConfidenceThreshold <= 0 || c.Capture.AlertConfidenceThreshold > 1 {
		c.Capture.AlertConfidenceThreshold = DefaultAlertConfidence
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = DefaultRetentionDays
	}
	if c.Storage.MaxScreenshots <= 0 {
		c.Storage.MaxScreenshots = DefaultMaxScreenshots
	}
	if c.Storage.MaxContextChars <= 0 {
		c.Storage.MaxContextChars = DefaultMaxContextChars
	}
}

// DataDir is the root of all persisted state: config.json, profiles/,
// summaries/, screenshots/ and logs/.
func DataDir() string {
	if dir := os.Getenv("RETRACE_DATA_DIR"); dir != "" {
		return dir
	}
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".retrace")
}

func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
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
	if key := os.Getenv("RETRACE_API_KEY"); key != "" {
		cfg.Model.API.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Model.API.APIKey == "" {
		cfg.Model.API.APIKey = key
	}
	if endpoint := os.Getenv("RETRACE_API_ENDPOINT"); endpoint != "" {
		cfg.Model.API.Endpoint = endpoint
	}
	if model := os.Getenv("RETRACE_API_MODEL"); model != "" {
		cfg.Model.API.Model = model
	}
	if provider := os.Getenv("RETRACE_PROVIDER"); provider != "" {
		cfg.Model.Provider = provider
	}
	if endpoint := os.Getenv("RETRACE_OLLAMA_ENDPOINT"); endpoint != "" {
		cfg.Model.Ollama.Endpoint = endpoint
	}
	if interval := os.Getenv("RETRACE_INTERVAL_MS"); interval != "" {
		if parsed, err := strconv.ParseInt(interval, 10, 64); err == nil {
			cfg.Capture.IntervalMS = parsed
		}
	}
	if token := os.Getenv("RETRACE_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}

	cfg.Normalize()
	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(DataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
