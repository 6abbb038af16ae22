package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/ai/providers"
	"github.com/poiesic/kexpand/core"
)

const (
	// DefaultCooldown is how long a degraded model is skipped.
	DefaultCooldown = 60 * time.Second

	// DefaultMinSamples is the number of outcomes a window must hold before
	// its error rate can degrade a model.
	DefaultMinSamples = 3

	// DefaultErrorRateTrigger applies to models without a fallback config.
	DefaultErrorRateTrigger = 0.5
)

type entry struct {
	provider ai.Provider
	config   ai.Config
	metrics  modelMetrics
	window   *Window
	// tripped is set while a degraded mark is live; the window is reset
	// the first time the mark is found expired.
	tripped atomic.Bool
}

// Registry is the process-wide set of models the router can call.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	models      map[string]*entry
	fallbacks   map[string]core.FallbackConfig
	catalog     *ai.Catalog
	degraded    *cache.Cache
	windowSize  int
	minSamples  int
	cooldown    time.Duration
	constructor providers.Constructor
	logger      *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry) error

// WithCatalog sets the price table used to cost token usage.
func WithCatalog(catalog *ai.Catalog) RegistryOption {
	return func(r *Registry) error {
		if catalog == nil {
			return fmt.Errorf("%w: nil catalog", core.ErrConfiguration)
		}
		r.catalog = catalog
		return nil
	}
}

// WithWindowSize sets how many recent outcomes each model's window holds.
func WithWindowSize(size int) RegistryOption {
	return func(r *Registry) error {
		if size <= 0 {
			return fmt.Errorf("%w: window size must be positive", core.ErrConfiguration)
		}
		r.windowSize = size
		return nil
	}
}

// WithMinSamples sets how many outcomes a window needs before it can degrade a model.
func WithMinSamples(n int) RegistryOption {
	return func(r *Registry) error {
		if n <= 0 {
			return fmt.Errorf("%w: min samples must be positive", core.ErrConfiguration)
		}
		r.minSamples = n
		return nil
	}
}

// WithCooldown sets how long a degraded model is skipped.
func WithCooldown(d time.Duration) RegistryOption {
	return func(r *Registry) error {
		if d <= 0 {
			return fmt.Errorf("%w: cooldown must be positive", core.ErrConfiguration)
		}
		r.cooldown = d
		return nil
	}
}

// WithConstructor replaces the provider constructor used by Configure.
func WithConstructor(ctor providers.Constructor) RegistryOption {
	return func(r *Registry) error {
		r.constructor = ctor
		return nil
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		models:      make(map[string]*entry),
		fallbacks:   make(map[string]core.FallbackConfig),
		catalog:     ai.DefaultCatalog(),
		windowSize:  DefaultWindowSize,
		minSamples:  DefaultMinSamples,
		cooldown:    DefaultCooldown,
		constructor: providers.New,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.degraded = cache.New(r.cooldown, 2*r.cooldown)
	r.logger = r.logger.With("component", "llm-registry")
	return r, nil
}

// Register adds provider under its model name, replacing and closing any
// provider already registered under that name. config may be nil.
func (r *Registry) Register(provider ai.Provider, config *ai.Config) error {
	if provider == nil || provider.Name() == "" {
		return fmt.Errorf("%w: provider must have a model name", core.ErrConfiguration)
	}
	e := &entry{provider: provider, window: NewWindow(r.windowSize)}
	if config != nil {
		e.config = *config
	} else {
		e.config = ai.Config{Kind: provider.Kind(), Model: provider.Name()}
	}

	name := provider.Name()
	r.mu.Lock()
	old := r.models[name]
	r.models[name] = e
	r.mu.Unlock()
	r.degraded.Delete(name)

	if old != nil && old.provider != provider {
		if err := old.provider.Close(); err != nil {
			r.logger.Warn("closing replaced provider", "model", name, "err", err)
		}
	}
	r.logger.Info("registered model", "model", name, "provider", e.config.Kind)
	return nil
}

// Configure builds a provider for config and registers it.
// Returns the model name it was registered under.
func (r *Registry) Configure(config *ai.Config) (string, error) {
	provider, err := r.constructor(config)
	if err != nil {
		return "", err
	}
	if err := r.Register(provider, config); err != nil {
		provider.Close()
		return "", err
	}
	return provider.Name(), nil
}

// Configs returns the configs of every registered model with API keys redacted,
// ordered by model name.
func (r *Registry) Configs() []ai.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ai.Config, 0, len(r.models))
	for _, e := range r.models {
		c := e.config
		if c.APIKey != "" {
			c.APIKey = "***"
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b ai.Config) int {
		switch {
		case a.Model < b.Model:
			return -1
		case a.Model > b.Model:
			return 1
		}
		return 0
	})
	return out
}

// Provider returns the provider registered under model.
func (r *Registry) Provider(model string) (ai.Provider, error) {
	e, err := r.entry(model)
	if err != nil {
		return nil, err
	}
	return e.provider, nil
}

// Has reports whether model is registered.
func (r *Registry) Has(model string) bool {
	_, err := r.entry(model)
	return err == nil
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Metrics returns a snapshot of model's metrics.
func (r *Registry) Metrics(model string) (MetricsSnapshot, error) {
	e, err := r.entry(model)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	s := e.metrics.snapshot()
	s.Model = model
	s.Provider = string(e.config.Kind)
	s.WindowErrorRate = e.window.ErrorRate()
	s.WindowSize = e.window.Len()
	s.Degraded = r.IsDegraded(model)
	return s, nil
}

// AllMetrics returns snapshots for every registered model, ordered by name.
func (r *Registry) AllMetrics() []MetricsSnapshot {
	names := r.Models()
	out := make([]MetricsSnapshot, 0, len(names))
	for _, name := range names {
		if s, err := r.Metrics(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// ConfigureFallback validates cfg and stores it under its primary model.
// Every model in the chain must be registered.
func (r *Registry) ConfigureFallback(cfg core.FallbackConfig) error {
	if err := core.ValidateFallbackConfig(&cfg); err != nil {
		return err
	}
	for _, model := range cfg.Chain() {
		if !r.Has(model) {
			return fmt.Errorf("%w: %w: %s", core.ErrInvalidFallbackConfig, core.ErrUnknownModel, model)
		}
	}
	cfg.FallbackModels = slices.Clone(cfg.FallbackModels)
	r.mu.Lock()
	r.fallbacks[cfg.PrimaryModel] = cfg
	r.mu.Unlock()
	r.logger.Info("configured fallback chain", "primary", cfg.PrimaryModel, "fallbacks", cfg.FallbackModels)
	return nil
}

// Fallback returns the fallback config stored for primary.
func (r *Registry) Fallback(primary string) (core.FallbackConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.fallbacks[primary]
	if !ok {
		return core.FallbackConfig{}, fmt.Errorf("%w: %s", ErrFallbackNotFound, primary)
	}
	return cfg, nil
}

// Cost prices usage for model from the catalog.
func (r *Registry) Cost(model string, usage core.TokenUsage) float64 {
	e, err := r.entry(model)
	if err != nil {
		return 0
	}
	return r.catalog.Cost(e.config.Kind, model, usage)
}

// Catalog returns the registry's price table.
func (r *Registry) Catalog() *ai.Catalog {
	return r.catalog
}

// IsDegraded reports whether model is inside a degraded cool-down.
func (r *Registry) IsDegraded(model string) bool {
	_, ok := r.degradedAt(model)
	return ok
}

// degradedAt returns when model was marked degraded, if the mark is live.
// An expired mark resets the model's window.
func (r *Registry) degradedAt(model string) (time.Time, bool) {
	if v, ok := r.degraded.Get(model); ok {
		return v.(time.Time), true
	}
	if e, err := r.entry(model); err == nil && e.tripped.CompareAndSwap(true, false) {
		e.window.Reset()
		r.logger.Info("model cool-down expired", "model", model)
	}
	return time.Time{}, false
}

// record accounts one attempt against model and degrades it when its
// window error rate exceeds trigger.
func (r *Registry) record(model string, latency time.Duration, usage core.TokenUsage, failed bool, trigger float64) {
	e, err := r.entry(model)
	if err != nil {
		return
	}
	e.metrics.record(model, latency, usage, failed)
	e.window.Record(failed)

	if !failed || e.window.Len() < r.minSamples {
		return
	}
	rate := e.window.ErrorRate()
	if rate <= trigger || !e.tripped.CompareAndSwap(false, true) {
		return
	}
	r.degraded.Set(model, time.Now(), r.cooldown)
	degradedTotal.WithLabelValues(model).Inc()
	r.logger.Warn("model degraded", "model", model, "window_error_rate", rate, "trigger", trigger, "cooldown", r.cooldown)
}

// trigger returns the error rate trigger configured for model.
func (r *Registry) trigger(model string, def float64) float64 {
	if cfg, err := r.Fallback(model); err == nil {
		return cfg.ErrorRateTrigger(def)
	}
	return def
}

func (r *Registry) entry(model string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	return e, nil
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	models := r.models
	r.models = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for name, e := range models {
		if err := e.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
