// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.




package kexpand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/ai/providers"
	"github.com/poiesic/kexpand/api"
	"github.com/poiesic/kexpand/config"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/crawl"
	"github.com/poiesic/kexpand/extract"
	"github.com/poiesic/kexpand/graph"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/llm"
	"github.com/poiesic/kexpand/novelty"
	"github.com/poiesic/kexpand/reembed"
	"github.com/poiesic/kexpand/storage/badger"
)

// Engine wires the knowledge expansion components over one store.
type Engine struct {
	cfg        *config.Config
	store      *badger.Store
	registry   *llm.Registry
	templates  *llm.Templates
	router     *llm.Router
	embedder   ai.Embedder
	robots     *crawl.Robots
	pipeline   *ingestion.Pipeline
	controller *jobs.Controller
	scheduler  *crawl.Scheduler
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger    *slog.Logger
	store     *badger.Store
	extractor extract.Extractor
	embedder  ai.Embedder
	registry  []llm.RegistryOption
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithStore uses an already opened store instead of the configured one.
// The engine takes ownership and closes it.
func WithStore(store *badger.Store) EngineOption {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithExtractor replaces the built-in extractors. Web sources still go
// through the robots.txt and rate limit checks.
func WithExtractor(extractor extract.Extractor) EngineOption {
	return func(o *engineOptions) {
		o.extractor = extractor
	}
}

// WithEmbedder replaces the embedder built from the configuration.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithRegistryOptions passes options to the model registry.
func WithRegistryOptions(opts ...llm.RegistryOption) EngineOption {
	return func(o *engineOptions) {
		o.registry = append(o.registry, opts...)
	}
}

// Open builds an engine from cfg. A nil cfg uses config.Default().
func Open(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	e := &Engine{cfg: cfg, logger: options.logger, embedder: options.embedder, store: options.store}

	if e.store == nil {
		store, err := badger.Open(cfg.Database.Path, cfg.Database.InMemory, e.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		e.store = store
	}
	if err := e.build(ctx, options); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context, options *engineOptions) error {
	cfg := e.cfg
	var err error

	registryOpts := append([]llm.RegistryOption{llm.WithRegistryLogger(e.logger)}, options.registry...)
	if e.registry, err = llm.NewRegistry(registryOpts...); err != nil {
		return err
	}
	for _, price := range cfg.Models.Prices {
		e.registry.Catalog().Set(price)
	}
	for i := range cfg.Models.Providers {
		if _, err := e.registry.Configure(&cfg.Models.Providers[i]); err != nil {
			return fmt.Errorf("failed to configure model %s: %w", cfg.Models.Providers[i].Model, err)
		}
	}
	for _, fb := range cfg.Models.Fallbacks {
		if err := e.registry.ConfigureFallback(fb.FallbackConfig()); err != nil {
			return err
		}
	}

	e.templates = llm.NewTemplates(e.store.Templates, e.registry)
	if err := e.seedTemplates(ctx); err != nil {
		return err
	}

	routerOpts := []llm.RouterOption{llm.WithRouterLogger(e.logger)}
	if model := e.defaultModel(); model != "" {
		routerOpts = append(routerOpts, llm.WithDefaultModel(model))
	}
	if e.router, err = llm.NewRouter(e.registry, e.templates, routerOpts...); err != nil {
		return err
	}

	if e.embedder == nil && cfg.Models.Embedding != nil {
		if e.embedder, err = providers.NewEmbedder(cfg.Models.Embedding); err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	extractor := options.extractor
	if extractor == nil {
		if extractor, err = extract.New(extract.WithUserAgent(cfg.Crawl.UserAgent), extract.WithLogger(e.logger)); err != nil {
			return err
		}
	}
	if cfg.Crawl.RespectRobots {
		e.robots = crawl.NewRobots(cfg.Crawl.UserAgent, nil)
	}
	polite := crawl.NewPoliteExtractor(extractor, e.robots, crawl.NewLimiter(cfg.Crawl.MinRate, cfg.Crawl.MaxRate))

	classifier, err := novelty.NewClassifier(e.store.Graph,
		novelty.WithTopK(cfg.Novelty.TopK),
		novelty.WithNoveltyThreshold(cfg.Novelty.NoveltyThreshold),
		novelty.WithLinkThreshold(cfg.Novelty.LinkThreshold),
		novelty.WithLogger(e.logger))
	if err != nil {
		return err
	}
	linker, err := graph.NewLinker(e.store.Graph, graph.WithLogger(e.logger))
	if err != nil {
		return err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithChunkSize(cfg.Ingestion.ChunkSize),
		ingestion.WithParseAttempts(cfg.Ingestion.ParseAttempts),
		ingestion.WithLogger(e.logger),
	}
	if e.embedder != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithEmbedder(e.embedder))
	}
	if cfg.Ingestion.SummaryTemplate != "" {
		id, err := e.templateID(ctx, cfg.Ingestion.SummaryTemplate)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, ingestion.WithSummaryTemplate(id))
	}
	if e.pipeline, err = ingestion.NewPipeline(polite, e.router, classifier, linker, pipelineOpts...); err != nil {
		return err
	}

	if e.controller, err = jobs.NewController(e.pipeline, e.store.History, jobs.WithLogger(e.logger)); err != nil {
		return err
	}

	schedulerOpts := []crawl.Option{crawl.WithLogger(e.logger)}
	if e.robots != nil {
		schedulerOpts = append(schedulerOpts, crawl.WithRobots(e.robots))
	}
	if e.scheduler, err = crawl.NewScheduler(e.controller, schedulerOpts...); err != nil {
		return err
	}
	return nil
}

// defaultModel is the configured default, else the first configured provider.
func (e *Engine) defaultModel() string {
	if e.cfg.Models.Default != "" {
		return e.cfg.Models.Default
	}
	if len(e.cfg.Models.Providers) > 0 {
		return e.cfg.Models.Providers[0].Model
	}
	return ""
}

// seedTemplates stores the configured templates whose names are not taken yet.
func (e *Engine) seedTemplates(ctx context.Context) error {
	if len(e.cfg.Templates) == 0 {
		return nil
	}
	existing, err := e.templates.List(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(existing))
	for _, t := range existing {
		names[t.Name] = true
	}
	for _, t := range e.cfg.Templates {
		if names[t.Name] {
			continue
		}
		created, err := e.templates.Create(ctx, t.PromptTemplate())
		if err != nil {
			return fmt.Errorf("failed to seed template %q: %w", t.Name, err)
		}
		e.logger.Info("seeded prompt template", "name", created.Name, "id", created.Id)
	}
	return nil
}

// templateID resolves a stored template by id or name.
func (e *Engine) templateID(ctx context.Context, ref string) (string, error) {
	templates, err := e.templates.List(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range templates {
		if t.Id == ref || t.Name == ref {
			return t.Id, nil
		}
	}
	return "", fmt.Errorf("%w: summary template %q: %w", core.ErrConfiguration, ref, llm.ErrTemplateNotFound)
}

// Store returns the graph store.
func (e *Engine) Store() *badger.Store { return e.store }

// Registry returns the model registry.
func (e *Engine) Registry() *llm.Registry { return e.registry }

// Templates returns the prompt template service.
func (e *Engine) Templates() *llm.Templates { return e.templates }

// Router returns the fallback router.
func (e *Engine) Router() *llm.Router { return e.router }

// Pipeline returns the per-item ingestion pipeline.
func (e *Engine) Pipeline() *ingestion.Pipeline { return e.pipeline }

// Controller returns the batch job controller.
func (e *Engine) Controller() *jobs.Controller { return e.controller }

// Scheduler returns the crawl scheduler.
func (e *Engine) Scheduler() *crawl.Scheduler { return e.scheduler }

// CrawlConfig returns the configured crawl defaults.
func (e *Engine) CrawlConfig() crawl.Config {
	return crawl.Config{
		MaxDepth:       e.cfg.Crawl.MaxDepth,
		FollowLinks:    e.cfg.Crawl.FollowLinks,
		SameDomainOnly: e.cfg.Crawl.SameDomainOnly,
	}
}

// NewServer creates the HTTP API over the engine's components.
func (e *Engine) NewServer(opts ...api.Option) (*api.Server, error) {
	base := []api.Option{
		api.WithLogger(e.logger),
		api.WithJobDefaults(e.cfg.Jobs),
		api.WithCrawlDefaults(e.CrawlConfig()),
		api.WithTimeouts(e.cfg.Server.ReadTimeout, e.cfg.Server.WriteTimeout),
	}
	return api.NewServer(e.controller, e.scheduler, e.registry, e.templates, append(base, opts...)...)
}

// NewReembedder creates a reembedder over the engine's graph and embedder.
func (e *Engine) NewReembedder(cfg *reembed.Config) (*reembed.Reembedder, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding model configured", reembed.ErrEmbedderRequired)
	}
	return reembed.NewReembedder(e.store.Graph, e.embedder, cfg, e.logger)
}

// Close stops running jobs, closes the providers and the store.
func (e *Engine) Close() error {
	var errs []error
	if e.controller != nil {
		errs = append(errs, e.controller.Close())
	}
	if e.registry != nil {
		errs = append(errs, e.registry.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
