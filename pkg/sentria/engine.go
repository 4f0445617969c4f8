// Package sentria wires the agent console together: config, channel
// selection, the session, and observability. It is the only package the
// console binary needs to import.
package sentria

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/ekkolabs/sentria/pkg/compliance"
	"github.com/ekkolabs/sentria/pkg/logging"
	"github.com/ekkolabs/sentria/pkg/metrics"
	"github.com/ekkolabs/sentria/pkg/observers"
	"github.com/ekkolabs/sentria/pkg/providers/deepgram"
	"github.com/ekkolabs/sentria/pkg/redact"
	"github.com/ekkolabs/sentria/pkg/session"
	"github.com/ekkolabs/sentria/pkg/summaries"
	"github.com/ekkolabs/sentria/pkg/transports"
	"github.com/ekkolabs/sentria/pkg/transports/backend"
	"github.com/ekkolabs/sentria/pkg/transports/mock"
)

// ChannelBuilder constructs a channel from vendor settings.
type ChannelBuilder func(cfg Config) (transports.Channel, error)

// ChannelRegistry maps provider names to builders. The built-in providers are
// registered by NewChannelRegistry; callers may add their own.
type ChannelRegistry struct {
	builders map[string]ChannelBuilder
}

func NewChannelRegistry() *ChannelRegistry {
	r := &ChannelRegistry{builders: make(map[string]ChannelBuilder)}
	r.Register("backend", func(cfg Config) (transports.Channel, error) {
		return backend.New(cfg.Backend), nil
	})
	r.Register("deepgram", func(cfg Config) (transports.Channel, error) {
		var dgCfg deepgram.Config
		if err := mapstructure.Decode(cfg.Vendors.STT.Settings, &dgCfg); err != nil {
			return nil, fmt.Errorf("decode deepgram settings: %w", err)
		}
		if strings.TrimSpace(dgCfg.APIKey) == "" {
			return nil, fmt.Errorf("deepgram api_key is required")
		}
		return deepgram.New(dgCfg), nil
	})
	r.Register("mock", func(cfg Config) (transports.Channel, error) {
		return mock.New(), nil
	})
	return r
}

func (r *ChannelRegistry) Register(name string, b ChannelBuilder) {
	r.builders[name] = b
}

func (r *ChannelRegistry) Build(name string, cfg Config) (transports.Channel, error) {
	b, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown channel provider %q", name)
	}
	return b(cfg)
}

// Engine owns one configured session and its supporting pieces.
type Engine struct {
	cfg       Config
	registry  *ChannelRegistry
	channel   transports.Channel
	session   *session.Session
	store     *summaries.Store
	asyncObs  *metrics.AsyncObserver
	artifacts *os.File
}

type EngineOptions struct {
	Config   Config
	Registry *ChannelRegistry
	// Channel overrides the registry lookup when set.
	Channel transports.Channel
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	SetDefaultLogger(cfg.LogLevel)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	slog.Info("sentria_init",
		"environment", cfg.Environment,
		"stt_provider", cfg.Vendors.STT.Provider,
		"backend_url", cfg.Backend.URL,
	)

	obsList := []metrics.Observer{observers.NewLoggerObserver(slog.Default())}
	var artifacts *os.File
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		f, err := openArtifactLog(dir)
		if err != nil {
			slog.Warn("artifacts_dir_unavailable", "dir", dir, "error", err.Error())
		} else {
			artifacts = f
			obsList = append(obsList, metrics.NewJSONLObserver(f))
		}
	}
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	registry := opts.Registry
	if registry == nil {
		registry = NewChannelRegistry()
	}

	cleanup := func() {
		asyncObs.Close()
		if artifacts != nil {
			_ = artifacts.Close()
		}
	}

	channel := opts.Channel
	if channel == nil {
		var err error
		channel, err = registry.Build(cfg.Vendors.STT.Provider, cfg)
		if err != nil {
			cleanup()
			return nil, err
		}
	}

	if co, ok := channel.(interface{ SetObserver(metrics.Observer) }); ok {
		co.SetObserver(asyncObs)
	}

	var store *summaries.Store
	if path := strings.TrimSpace(cfg.Summaries.Path); path != "" {
		var err error
		store, err = summaries.Open(path)
		if err != nil {
			cleanup()
			return nil, err
		}
	}

	agg := compliance.NewAggregator(cfg.Compliance)
	sessOpts := []session.Option{session.WithObserver(asyncObs)}
	if store != nil {
		sessOpts = append(sessOpts, session.WithStore(store))
	}
	sess := session.New(cfg.Session, channel, agg, sessOpts...)

	return &Engine{
		cfg:       cfg,
		registry:  registry,
		channel:   channel,
		session:   sess,
		store:     store,
		asyncObs:  asyncObs,
		artifacts: artifacts,
	}, nil
}

func openArtifactLog(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, fmt.Sprintf("events-%d.jsonl", time.Now().Unix()))
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Start connects the channel. Audio does not flow until the caller starts
// streaming on the session.
func (e *Engine) Start(ctx context.Context) error {
	return e.session.Connect(ctx)
}

// Stop tears everything down in dependency order. Safe to call more than once.
func (e *Engine) Stop() error {
	var firstErr error
	if e.session.Streaming() {
		if err := e.session.StopStreaming(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.session.Disconnect(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.store = nil
	}
	if e.asyncObs != nil {
		e.asyncObs.Close()
		e.asyncObs = nil
	}
	if e.artifacts != nil {
		if err := e.artifacts.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.artifacts = nil
	}
	return firstErr
}

func (e *Engine) Session() *session.Session   { return e.session }
func (e *Engine) Channel() transports.Channel { return e.channel }
func (e *Engine) Store() *summaries.Store     { return e.store }
func (e *Engine) Config() Config              { return e.cfg }
func (e *Engine) Registry() *ChannelRegistry  { return e.registry }

func (e *Engine) Health() error {
	if e.channel == nil {
		return fmt.Errorf("missing channel")
	}
	return nil
}

// SetDefaultLogger installs the process-wide JSON logger at the given level.
func SetDefaultLogger(level string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logging.ParseLevel(level),
	})))
}
