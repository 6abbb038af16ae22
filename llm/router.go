package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/retry"
)

// Invocation is one request to the router. Exactly one of TemplateID and
// Prompt is used; TemplateID wins when both are set.
type Invocation struct {
	TemplateID string
	Prompt     string
	System     string
	Variables  map[string]string
	// Models is an explicit preference chain. A single entry expands to
	// that model's fallback chain; empty uses the template's model or the
	// router default.
	Models      []string
	Temperature *float64
	MaxTokens   int
	JSON        bool
}

// Result is the outcome of a successful invocation.
type Result struct {
	Text     string          `json:"response"`
	Usage    core.TokenUsage `json:"token_usage"`
	Latency  time.Duration   `json:"latency"`
	Model    string          `json:"model_used"`
	Attempts int             `json:"attempts"`
}

// Router invokes models with retries and cascading fallback.
type Router struct {
	registry     *Registry
	templates    *Templates
	defaultModel string
	baseDelay    time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router) error

// WithDefaultModel sets the model used when an invocation names none.
func WithDefaultModel(model string) RouterOption {
	return func(r *Router) error {
		r.defaultModel = model
		return nil
	}
}

// WithBackoff sets the retry backoff base and cap.
func WithBackoff(base, max time.Duration) RouterOption {
	return func(r *Router) error {
		if base <= 0 || max < base {
			return fmt.Errorf("%w: backoff base must be positive and not above max", core.ErrConfiguration)
		}
		r.baseDelay = base
		r.maxDelay = max
		return nil
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) error {
		r.logger = logger
		return nil
	}
}

// NewRouter creates a router over registry. templates may be nil, in which
// case template invocations fail with ErrTemplateNotFound.
func NewRouter(registry *Registry, templates *Templates, opts ...RouterOption) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", core.ErrConfiguration)
	}
	r := &Router{
		registry:  registry,
		templates: templates,
		baseDelay: 200 * time.Millisecond,
		maxDelay:  5 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "router")
	return r, nil
}

// Registry returns the registry the router calls through.
func (r *Router) Registry() *Registry {
	return r.registry
}

// DefaultModel returns the model used when an invocation names none.
func (r *Router) DefaultModel() string {
	return r.defaultModel
}

// Invoke resolves inv to a chain of models and runs it.
// Returns ErrChainExhausted when every model failed.
func (r *Router) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	req := ai.Request{
		System:      inv.System,
		Prompt:      inv.Prompt,
		Temperature: inv.Temperature,
		MaxTokens:   inv.MaxTokens,
		JSON:        inv.JSON,
	}
	first := ""
	if len(inv.Models) > 0 {
		first = inv.Models[0]
	}

	switch {
	case inv.TemplateID != "":
		if r.templates == nil {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, inv.TemplateID)
		}
		tmpl, text, err := r.templates.Render(ctx, inv.TemplateID, inv.Variables)
		if err != nil {
			return nil, err
		}
		req.Prompt = text
		if req.Temperature == nil {
			req.Temperature = ai.Temperature(tmpl.Temperature)
		}
		if req.MaxTokens == 0 {
			req.MaxTokens = tmpl.MaxTokens
		}
		if first == "" {
			first = tmpl.ModelName
		}
	case strings.TrimSpace(inv.Prompt) == "":
		return nil, ErrEmptyInvocation
	}

	if first == "" {
		first = r.defaultModel
	}
	if first == "" {
		return nil, ErrNoModel
	}

	cfg, err := r.registry.Fallback(first)
	if err != nil {
		cfg = core.DefaultFallbackConfig(first)
	}
	chain := cfg.Chain()
	if len(inv.Models) > 1 {
		chain = inv.Models
	}
	return r.run(ctx, chain, cfg, req)
}

// Generate is a convenience for a raw prompt against the default chain.
func (r *Router) Generate(ctx context.Context, system, prompt string) (*Result, error) {
	return r.Invoke(ctx, Invocation{System: system, Prompt: prompt})
}

func (r *Router) run(ctx context.Context, chain []string, cfg core.FallbackConfig, req ai.Request) (*Result, error) {
	order := r.order(chain)
	defTrigger := cfg.ErrorRateTrigger(DefaultErrorRateTrigger)

	var lastErr error
	attempts := 0
	for i, model := range order {
		if i > 0 {
			fallbacksTotal.Inc()
			r.logger.Warn("falling back", "from", order[i-1], "to", model, "err", lastErr)
		}

		modelCfg := cfg
		if own, err := r.registry.Fallback(model); err == nil {
			modelCfg = own
		}
		trigger := r.registry.trigger(model, defTrigger)

		res, n, err := r.call(ctx, model, modelCfg, trigger, req)
		attempts += n
		if err == nil {
			res.Attempts = attempts
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("invoking %s: %w", model, ctxErr)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrChainExhausted, strings.Join(order, " -> "), lastErr)
}

// call runs one model with retries. Returns the result, the attempts made
// and the last error.
func (r *Router) call(ctx context.Context, model string, cfg core.FallbackConfig, trigger float64, req ai.Request) (*Result, int, error) {
	provider, err := r.registry.Provider(model)
	if err != nil {
		return nil, 0, err
	}

	var res *Result
	attempts := 0
	policy := retry.Policy{
		MaxAttempts: cfg.MaxRetries + 1,
		BaseDelay:   r.baseDelay,
		MaxDelay:    r.maxDelay,
		Retryable:   ai.Retryable,
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		attempts = attempt
		actx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := generate(actx, provider, req)
		latency := time.Since(start)

		switch {
		case errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			// A response that arrives after the deadline is discarded.
			resp = nil
			err = ai.NewProviderError(provider.Kind(), model, fmt.Errorf("%w after %s", context.DeadlineExceeded, cfg.Timeout))
		case err == nil && strings.TrimSpace(resp.Text) == "":
			err = ai.NewProviderError(provider.Kind(), model, ai.ErrEmptyResponse)
		}
		if ctx.Err() != nil {
			// Cancelled by the caller; not the model's fault.
			return err
		}

		if err != nil {
			r.registry.record(model, latency, core.TokenUsage{}, true, trigger)
			r.logger.Debug("model attempt failed", "model", model, "attempt", attempt, "kind", ai.ClassifyError(err), "err", err)
			return err
		}
		usage := resp.Usage
		usage.Cost = r.registry.Cost(model, usage)
		r.registry.record(model, latency, usage, false, trigger)
		res = &Result{Text: resp.Text, Usage: usage, Latency: latency, Model: model}
		return nil
	})
	return res, attempts, err
}

type generated struct {
	resp *ai.Response
	err  error
}

// generate runs one provider call and returns when it finishes or ctx is
// done, whichever comes first. A provider that ignores ctx keeps running in
// the background until it returns; its result is dropped.
func generate(ctx context.Context, provider ai.Provider, req ai.Request) (*ai.Response, error) {
	done := make(chan generated, 1)
	go func() {
		resp, err := provider.Generate(ctx, req)
		done <- generated{resp: resp, err: err}
	}()
	select {
	case g := <-done:
		return g.resp, g.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// order drops degraded models from chain. When every model is degraded the
// least recently degraded one is kept so the chain is never empty.
func (r *Router) order(chain []string) []string {
	out := make([]string, 0, len(chain))
	oldest := ""
	var oldestAt time.Time
	for _, model := range chain {
		at, degraded := r.registry.degradedAt(model)
		if !degraded {
			out = append(out, model)
			continue
		}
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = model, at
		}
	}
	if len(out) == 0 && oldest != "" {
		r.logger.Warn("every model in chain is degraded", "trying", oldest)
		out = append(out, oldest)
	}
	return out
}
