package sentria

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend.URL != "ws://localhost:8080/ws/agent-audio" {
		t.Fatalf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.Backend.DialTimeoutMS != 10000 {
		t.Fatalf("dial timeout = %d", cfg.Backend.DialTimeoutMS)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("sample rate = %d", cfg.Capture.SampleRate)
	}
	if cfg.Vendors.STT.Provider != "backend" {
		t.Fatalf("stt provider = %q", cfg.Vendors.STT.Provider)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("redaction not on by default")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  url: ws://backend.internal/ws
capture:
  sample_rate: 48000
compliance:
  empathy_min: 2
summaries:
  path: /tmp/sentria-summaries
log_level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend.URL != "ws://backend.internal/ws" {
		t.Fatalf("backend url = %q", cfg.Backend.URL)
	}
	if cfg.Capture.SampleRate != 48000 {
		t.Fatalf("sample rate = %d", cfg.Capture.SampleRate)
	}
	if cfg.Compliance.EmpathyMin != 2 {
		t.Fatalf("empathy min = %d", cfg.Compliance.EmpathyMin)
	}
	// Untouched keys keep their defaults.
	if cfg.Backend.WriteQueue != 256 {
		t.Fatalf("write queue = %d", cfg.Backend.WriteQueue)
	}
	if got := cfg.Compliance.ClosingKeywords; len(got) != 3 {
		t.Fatalf("closing keywords = %v", got)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("SENTRIA_TEST_BACKEND", "ws://from-env/ws")
	t.Setenv("SENTRIA_TEST_KEY", "sk-123")

	path := writeConfig(t, `
backend:
  url: ${SENTRIA_TEST_BACKEND}
vendors:
  stt:
    provider: deepgram
    settings:
      api_key: ${SENTRIA_TEST_KEY}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend.URL != "ws://from-env/ws" {
		t.Fatalf("backend url = %q", cfg.Backend.URL)
	}
	if got := cfg.Vendors.STT.Settings["api_key"]; got != "sk-123" {
		t.Fatalf("api_key = %v", got)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
vendors:
  stt:
    provider: carrier-pigeon
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
