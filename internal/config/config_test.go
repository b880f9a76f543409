package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Model.Provider != DefaultProvider {
		t.Errorf("provider = %q, want %q", cfg.Model.Provider, DefaultProvider)
	}
	if cfg.Model.API.Type != DefaultAPIType {
		t.Errorf("api type = %q, want %q", cfg.Model.API.Type, DefaultAPIType)
	}
	if cfg.Capture.IntervalMS != DefaultIntervalMS {
		t.Errorf("interval = %d, want %d", cfg.Capture.IntervalMS, DefaultIntervalMS)
	}
	if !cfg.Capture.SkipUnchangedEnabled() {
		t.Error("skip_unchanged should default to true")
	}
	if cfg.Capture.ChangeThreshold != DefaultChangeThreshold {
		t.Errorf("change_threshold = %v, want %v", cfg.Capture.ChangeThreshold, DefaultChangeThreshold)
	}
	if cfg.Storage.RetentionDays != DefaultRetentionDays {
		t.Errorf("retention_days = %d, want %d", cfg.Storage.RetentionDays, DefaultRetentionDays)
	}
	if cfg.Storage.MaxContextChars != DefaultMaxContextChars {
		t.Errorf("max_context_chars = %d, want %d", cfg.Storage.MaxContextChars, DefaultMaxContextChars)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("RETRACE_DATA_DIR", t.TempDir())
	t.Setenv("RETRACE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Model.API.Endpoint != DefaultAPIEndpoint {
		t.Errorf("endpoint = %q, want default", cfg.Model.API.Endpoint)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RETRACE_DATA_DIR", t.TempDir())
	t.Setenv("RETRACE_API_KEY", "sk-test")
	t.Setenv("RETRACE_PROVIDER", "ollama")
	t.Setenv("RETRACE_INTERVAL_MS", "2500")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Model.API.APIKey != "sk-test" {
		t.Errorf("api key = %q, want sk-test", cfg.Model.API.APIKey)
	}
	if cfg.Model.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", cfg.Model.Provider)
	}
	if cfg.Capture.IntervalMS != 2500 {
		t.Errorf("interval = %d, want 2500", cfg.Capture.IntervalMS)
	}
}

// A config built from user input, persisted and reloaded must normalize to
// the same value, including defaults filled in for sparse input.
func TestConfig_RoundTrip(t *testing.T) {
	t.Setenv("RETRACE_DATA_DIR", t.TempDir())
	t.Setenv("RETRACE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := DefaultConfig()
	cfg.Model.Provider = "ollama"
	cfg.Model.Ollama.Model = "llava:13b"
	cfg.Capture.IntervalMS = 3000
	cfg.Storage.RetentionDays = 14
	cfg.Normalize()

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}
	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Errorf("round-trip mismatch:\n  saved  %+v\n  loaded %+v", cfg, loaded)
	}
}

func TestConfig_RoundTripSparse(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RETRACE_DATA_DIR", dir)
	t.Setenv("RETRACE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	sparse := []byte(`{"model":{"provider":"ollama"},"capture":{"interval_ms":5000}}`)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), sparse, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	want := DefaultConfig()
	want.Model.Provider = "ollama"
	want.Capture.IntervalMS = 5000
	want.Normalize()

	if !reflect.DeepEqual(want, loaded) {
		t.Errorf("sparse config mismatch:\n  want %+v\n  got  %+v", want, loaded)
	}
}

func TestNormalize_ClampsInvalid(t *testing.T) {
	cfg := &Config{}
	if err := json.Unmarshal([]byte(`{"capture":{"compress_quality":250,"change_threshold":3.5}}`), cfg); err != nil {
		t.Fatal(err)
	}
	cfg.Normalize()

	if cfg.Capture.CompressQuality != DefaultCompressQuality {
		t.Errorf("quality = %d, want default", cfg.Capture.CompressQuality)
	}
	if cfg.Capture.ChangeThreshold != DefaultChangeThreshold {
		t.Errorf("threshold = %v, want default", cfg.Capture.ChangeThreshold)
	}
	if cfg.Capture.IntervalMS != DefaultIntervalMS {
		t.Errorf("interval = %d, want default", cfg.Capture.IntervalMS)
	}
}
