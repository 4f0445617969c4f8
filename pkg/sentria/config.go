package sentria

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ekkolabs/sentria/pkg/capture"
	"github.com/ekkolabs/sentria/pkg/compliance"
	"github.com/ekkolabs/sentria/pkg/errorsx"
	"github.com/ekkolabs/sentria/pkg/session"
	"github.com/ekkolabs/sentria/pkg/transports/backend"
)

type Config struct {
	Backend       backend.Config      `mapstructure:"backend"`
	Capture       capture.Config      `mapstructure:"capture"`
	Compliance    compliance.Config   `mapstructure:"compliance"`
	Session       session.Config      `mapstructure:"session"`
	Summaries     SummariesConfig     `mapstructure:"summaries"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
}

type SummariesConfig struct {
	Path string `mapstructure:"path"`
}

// VendorConfig selects a channel implementation by name and carries its
// provider-specific settings, decoded by the implementation itself.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ObservabilityConfig struct {
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// LoadConfig reads a config file, applies defaults, and expands ${ENV}
// references in string settings.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfigLoad)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal config: %w", err), errorsx.ReasonConfigLoad)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfigLoad)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "ws://localhost:8080/ws/agent-audio")
	v.SetDefault("backend.dial_timeout_ms", 10000)
	v.SetDefault("backend.write_queue", 256)
	v.SetDefault("backend.recv_buffer", 512)
	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("compliance.empathy_min", 1)
	v.SetDefault("compliance.closing_keywords", []string{"closing", "goodbye", "thank you"})
	v.SetDefault("session.url", "local")
	v.SetDefault("session.sample_rate", 16000)
	v.SetDefault("summaries.path", "")
	v.SetDefault("vendors.stt.provider", "backend")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	switch c.Vendors.STT.Provider {
	case "backend", "deepgram", "mock":
	default:
		return fmt.Errorf("unknown stt provider %q", c.Vendors.STT.Provider)
	}
	if c.Vendors.STT.Provider == "backend" && strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("backend.url is required")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	cfg.Backend.URL = os.ExpandEnv(cfg.Backend.URL)
	cfg.Summaries.Path = os.ExpandEnv(cfg.Summaries.Path)
	cfg.Observability.ArtifactsDir = os.ExpandEnv(cfg.Observability.ArtifactsDir)
	cfg.Session.URL = os.ExpandEnv(cfg.Session.URL)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, val := range settings {
		settings[k] = expandAny(val)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		return expandSettings(val)
	}
	return v
}
