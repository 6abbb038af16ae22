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




package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/kexpand"
	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/config"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/reembed"
	"github.com/poiesic/kexpand/storage"
	"github.com/urfave/cli/v2"
)

const (
	configKey  = "config"
	cleanupKey = "cleanup"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kexpand",
		Usage: "Knowledge expansion engine: ingest sources into a novelty-scored knowledge graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"KEXPAND_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this file",
			},
		},
		Before: setupLogger,
		After: func(c *cli.Context) error {
			if cleanup, ok := c.App.Metadata[cleanupKey].(func() error); ok {
				return cleanup()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides config)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest files or URLs as one batch job and wait for it",
				ArgsUsage: "<locator>...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Source type (document, web, text); inferred from each locator when empty",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Items processed concurrently (overrides config)",
					},
				},
			},
			{
				Name:      "crawl",
				Usage:     "Crawl from seed URLs and wait for the job",
				ArgsUsage: "<url>...",
				Action:    crawlCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-depth",
						Usage: "Maximum link depth from the seeds",
						Value: -1,
					},
					&cli.BoolFlag{
						Name:  "follow-links",
						Usage: "Follow links found in fetched pages",
					},
					&cli.BoolFlag{
						Name:  "same-domain-only",
						Usage: "Only follow links within the seed's domain",
						Value: true,
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List finished jobs",
				Action: historyCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "job-type",
						Usage: "Only show jobs of this type (upload, crawl)",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute the embedding of every knowledge node",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "embedding-provider",
						Usage: "Embedding provider kind (overrides config)",
						Value: string(ai.KindOpenAI),
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL (overrides config)",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name (overrides config)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of nodes to embed per request",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N nodes",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

// setupLogger loads the configuration, applies the global flag overrides and
// installs the default logger.
func setupLogger(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if db := c.String("db"); db != "" {
		cfg.Database.Path = db
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if file := c.String("log-file"); file != "" {
		cfg.Logging.File = file
	}

	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, cleanup := config.SetupLogger(cfg.Logging.File, level)
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	c.App.Metadata[cleanupKey] = cleanup
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func openEngine(ctx context.Context, c *cli.Context) (*kexpand.Engine, error) {
	cfg := loadedConfig(c)
	engine, err := kexpand.Open(ctx, cfg, kexpand.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadedConfig(c)
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Address = addr
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	server, err := engine.NewServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Address)
		errCh <- server.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func ingestCommand(c *cli.Context) error {
	locators := c.Args().Slice()
	if len(locators) == 0 {
		return fmt.Errorf("at least one locator is required")
	}

	var forced core.SourceType
	if t := c.String("type"); t != "" {
		st, err := core.ParseSourceType(t)
		if err != nil {
			return err
		}
		forced = st
	}

	items := make([]ingestion.Item, 0, len(locators))
	for _, loc := range locators {
		st := forced
		if st == "" {
			st = inferSourceType(loc)
		}
		items = append(items, ingestion.Item{Locator: loc, SourceType: st})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	jobCfg := loadedConfig(c).Jobs
	if n := c.Int("concurrency"); n > 0 {
		jobCfg.ConcurrencyLimit = n
	}

	snap, err := engine.Controller().Submit(ctx, core.JobKindUpload, items, jobCfg)
	if err != nil {
		return err
	}
	return waitAndReport(ctx, c.App.Writer, engine.Controller(), snap.JobID)
}

func crawlCommand(c *cli.Context) error {
	seeds := c.Args().Slice()
	if len(seeds) == 0 {
		return fmt.Errorf("at least one seed URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	crawlCfg := engine.CrawlConfig()
	if depth := c.Int("max-depth"); depth >= 0 {
		crawlCfg.MaxDepth = depth
	}
	if c.IsSet("follow-links") {
		crawlCfg.FollowLinks = c.Bool("follow-links")
	}
	if c.IsSet("same-domain-only") {
		crawlCfg.SameDomainOnly = c.Bool("same-domain-only")
	}

	snap, err := engine.Scheduler().Start(ctx, seeds, crawlCfg, loadedConfig(c).Jobs)
	if err != nil {
		return err
	}
	return waitAndReport(ctx, c.App.Writer, engine.Controller(), snap.JobID)
}

// waitAndReport blocks until the job settles and prints one line per item.
func waitAndReport(ctx context.Context, w io.Writer, controller *jobs.Controller, jobID string) error {
	snap, err := controller.Wait(ctx, jobID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = controller.Control(jobID, jobs.ActionCancel)
		}
		return err
	}

	for _, it := range snap.Items {
		switch it.Status {
		case jobs.ItemSucceeded:
			marker := "known"
			if it.IsNew {
				marker = "new"
			}
			fmt.Fprintf(w, "ok    %-5s %s  %q\n", marker, it.Locator, it.Title)
		case jobs.ItemFailed:
			fmt.Fprintf(w, "fail  %-5s %s  %s\n", it.Stage, it.Locator, it.Error)
		}
	}
	fmt.Fprintf(w, "\nJob %s %s: %d/%d succeeded, %d failed\n",
		snap.JobID, snap.Status, snap.SucceededItems, snap.TotalItems, snap.FailedItems)

	if snap.TotalItems > 0 && snap.SucceededItems == 0 {
		return fmt.Errorf("job %s: every item failed", snap.JobID)
	}
	return nil
}

func historyCommand(c *cli.Context) error {
	ctx := context.Background()

	query := storage.HistoryQuery{Limit: c.Int("limit")}
	if kind := c.String("job-type"); kind != "" {
		query.Kind = core.JobKind(kind)
		if query.Kind != core.JobKindUpload && query.Kind != core.JobKindCrawl {
			return fmt.Errorf("invalid job type %q: must be upload or crawl", kind)
		}
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	entries, total, err := engine.Controller().History(ctx, query)
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, h := range entries {
		fmt.Fprintf(w, "%s  run %d  %-6s %-9s %3d/%-3d ok  %5.1f%%  %s\n",
			h.JobId, h.Run, h.Kind, h.FinalStatus, h.SuccessfulItems, h.TotalItems,
			h.SuccessRate()*100, h.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "%d of %d jobs\n", len(entries), total)
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadedConfig(c)
	if model := c.String("embedding-model"); model != "" {
		embedding := &ai.Config{
			Kind:          ai.ProviderKind(c.String("embedding-provider")),
			Host:          c.String("embedding-host"),
			EmbeddingHost: c.String("embedding-host"),
			Model:         model,
		}
		if cfg.Models.Embedding != nil {
			embedding.APIKey = cfg.Models.Embedding.APIKey
		}
		if err := embedding.Validate(); err != nil {
			return fmt.Errorf("invalid embedding configuration: %w", err)
		}
		cfg.Models.Embedding = embedding
	}
	if cfg.Models.Embedding == nil {
		return fmt.Errorf("an embedding model is required: set models.embedding or --embedding-model")
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		Workers:        c.Int("workers"),
		ReportInterval: c.Int("report-interval"),
		MaxAttempts:    c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Progress:       reembed.WriterProgress(os.Stderr),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if reembedConfig.MaxAttempts <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, err := openEngine(ctx, c)
	if err != nil {
		return err
	}
	defer engine.Close()

	reembedder, err := engine.NewReembedder(reembedConfig)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(os.Stderr, "Embedding model: %s (%s)\n", cfg.Models.Embedding.Model, cfg.Models.Embedding.Kind)
	fmt.Fprintln(os.Stderr)

	stats, err := reembedder.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Reembedded %d/%d nodes in %s (%d failed)\n",
		stats.Processed, stats.Total, stats.Duration.Round(time.Millisecond), stats.Failed)
	return nil
}

func inferSourceType(locator string) core.SourceType {
	lower := strings.ToLower(locator)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return core.SourceTypeWeb
	}
	return core.SourceTypeDocument
}
