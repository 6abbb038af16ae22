package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Models    ModelsConfig    `yaml:"models"`
	Templates []Template      `yaml:"templates"`
	Jobs      core.JobConfig  `yaml:"jobs"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Novelty   NoveltyConfig   `yaml:"novelty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig locates the graph store.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// LoggingConfig sets the log level and an optional JSON log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ModelsConfig lists the providers to register at startup.
type ModelsConfig struct {
	// Default is the model used when a call names none.
	Default   string         `yaml:"default"`
	Providers []ai.Config    `yaml:"providers"`
	Embedding *ai.Config     `yaml:"embedding"`
	Fallbacks []Fallback     `yaml:"fallbacks"`
	Prices    []ai.ModelInfo `yaml:"prices"`
}

// Fallback is a fallback chain. Unset retries, timeout and triggers take
// the defaults of core.DefaultFallbackConfig.
type Fallback struct {
	Primary    string             `yaml:"primary"`
	Fallbacks  []string           `yaml:"fallbacks"`
	Triggers   map[string]float64 `yaml:"triggers"`
	MaxRetries *int               `yaml:"max_retries"`
	Timeout    time.Duration      `yaml:"timeout"`
}

// FallbackConfig converts f to the router's form.
func (f Fallback) FallbackConfig() core.FallbackConfig {
	cfg := core.DefaultFallbackConfig(f.Primary)
	cfg.FallbackModels = f.Fallbacks
	if len(f.Triggers) > 0 {
		cfg.Triggers = f.Triggers
	}
	if f.MaxRetries != nil {
		cfg.MaxRetries = *f.MaxRetries
	}
	if f.Timeout > 0 {
		cfg.Timeout = f.Timeout
	}
	return cfg
}

// Template is a prompt template seeded into the store on startup when no
// template of the same name exists.
type Template struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Template    string  `yaml:"template"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PromptTemplate converts t to the stored form.
func (t Template) PromptTemplate() *core.PromptTemplate {
	return &core.PromptTemplate{
		Name:        t.Name,
		Description: t.Description,
		Template:    t.Template,
		Variables:   core.Placeholders(t.Template),
		ModelName:   t.Model,
		Temperature: t.Temperature,
		MaxTokens:   t.MaxTokens,
	}
}

// CrawlConfig holds crawl defaults and politeness settings.
type CrawlConfig struct {
	MaxDepth       int     `yaml:"max_depth"`
	FollowLinks    bool    `yaml:"follow_links"`
	SameDomainOnly bool    `yaml:"same_domain_only"`
	UserAgent      string  `yaml:"user_agent"`
	MinRate        float64 `yaml:"min_rate"`
	MaxRate        float64 `yaml:"max_rate"`
	RespectRobots  bool    `yaml:"respect_robots"`
}

// IngestionConfig tunes the per-item pipeline.
type IngestionConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	ParseAttempts   int    `yaml:"parse_attempts"`
	SummaryTemplate string `yaml:"summary_template"`
}

// NoveltyConfig tunes the novelty classifier.
type NoveltyConfig struct {
	TopK             int     `yaml:"top_k"`
	NoveltyThreshold float64 `yaml:"novelty_threshold"`
	LinkThreshold    float64 `yaml:"link_threshold"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Database: DatabaseConfig{Path: "kexpand.db"},
		Logging:  LoggingConfig{Level: "info"},
		Jobs:     core.DefaultJobConfig(),
		Crawl: CrawlConfig{
			MaxDepth:       1,
			SameDomainOnly: true,
			UserAgent:      "kexpand/1.0 (+https://github.com/poiesic/kexpand)",
			MinRate:        0.2,
			MaxRate:        5,
			RespectRobots:  true,
		},
		Ingestion: IngestionConfig{
			ChunkSize:     4000,
			ParseAttempts: 3,
		},
		Novelty: NoveltyConfig{
			TopK:             8,
			NoveltyThreshold: 0.5,
			LinkThreshold:    0.3,
		},
	}
}

// Load reads the configuration file at path over the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration over the defaults and validates it.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
	}
	for i := range cfg.Models.Providers {
		cfg.Models.Providers[i].Normalize()
	}
	if cfg.Models.Embedding != nil {
		cfg.Models.Embedding.Normalize()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		errs = append(errs, errors.New("database.path is required unless database.in_memory is set"))
	}
	if err := core.ValidateJobConfig(c.Jobs); err != nil {
		errs = append(errs, fmt.Errorf("jobs: %w", err))
	}
	if c.Crawl.MaxDepth < 0 {
		errs = append(errs, errors.New("crawl.max_depth must not be negative"))
	}

	models := make(map[string]bool, len(c.Models.Providers))
	for i := range c.Models.Providers {
		p := &c.Models.Providers[i]
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("models.providers[%d]: %w", i, err))
			continue
		}
		models[p.Model] = true
	}
	if c.Models.Default != "" && !models[c.Models.Default] {
		errs = append(errs, fmt.Errorf("models.default %q is not a configured provider", c.Models.Default))
	}
	for i, f := range c.Models.Fallbacks {
		fb := f.FallbackConfig()
		if err := core.ValidateFallbackConfig(&fb); err != nil {
			errs = append(errs, fmt.Errorf("models.fallbacks[%d]: %w", i, err))
			continue
		}
		for _, m := range fb.Chain() {
			if !models[m] {
				errs = append(errs, fmt.Errorf("models.fallbacks[%d]: model %q is not a configured provider", i, m))
			}
		}
	}
	for i, t := range c.Templates {
		if err := core.ValidatePromptTemplate(t.PromptTemplate()); err != nil {
			errs = append(errs, fmt.Errorf("templates[%d]: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}
