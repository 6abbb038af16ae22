package llm

import (
	"testing"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/ai/mock"
	"github.com/poiesic/kexpand/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	r, err := NewRegistry(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(mock.NewMockProvider("beta"), nil))
	require.NoError(t, r.Register(mock.NewMockProvider("alpha"), nil))

	assert.Equal(t, []string{"alpha", "beta"}, r.Models())

	p, err := r.Provider("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())

	_, err = r.Provider("gamma")
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.ErrorIs(t, err, core.ErrUnknownModel)
}

func TestRegistry_RegisterReplacesAndCloses(t *testing.T) {
	r := newTestRegistry(t)
	old := mock.NewMockProvider("m")
	require.NoError(t, r.Register(old, nil))
	require.NoError(t, r.Register(mock.NewMockProvider("m"), nil))

	assert.True(t, old.Closed())
	assert.Len(t, r.Models(), 1)
}

func TestRegistry_Configure(t *testing.T) {
	r := newTestRegistry(t)
	cfg := ai.NewConfig(ai.WithKind(ai.KindMock), ai.WithModel("local"), ai.WithAPIKey("secret"))

	name, err := r.Configure(cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", name)
	assert.True(t, r.Has("local"))

	configs := r.Configs()
	require.Len(t, configs, 1)
	assert.Equal(t, "***", configs[0].APIKey)
	assert.Equal(t, "secret", cfg.APIKey)

	_, err = r.Configure(ai.NewConfig(ai.WithKind(ai.KindMock), ai.WithModel("")))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestRegistry_ConfigureFallback(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(mock.NewMockProvider("a"), nil))
	require.NoError(t, r.Register(mock.NewMockProvider("b"), nil))

	_, err := r.Fallback("a")
	assert.ErrorIs(t, err, ErrFallbackNotFound)

	cfg := core.DefaultFallbackConfig("a")
	cfg.FallbackModels = []string{"b", "missing"}
	err = r.ConfigureFallback(cfg)
	assert.ErrorIs(t, err, core.ErrInvalidFallbackConfig)
	assert.ErrorIs(t, err, core.ErrUnknownModel)

	cfg.FallbackModels = []string{"b", "b"}
	assert.ErrorIs(t, r.ConfigureFallback(cfg), core.ErrDuplicateFallback)

	cfg.FallbackModels = []string{"b"}
	require.NoError(t, r.ConfigureFallback(cfg))

	got, err := r.Fallback("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Chain())
}

func TestRegistry_DegradeNeedsMinSamples(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(mock.NewMockProvider("m"), nil))

	r.record("m", time.Millisecond, core.TokenUsage{}, true, 0.5)
	r.record("m", time.Millisecond, core.TokenUsage{}, true, 0.5)
	assert.False(t, r.IsDegraded("m"))

	r.record("m", time.Millisecond, core.TokenUsage{}, true, 0.5)
	assert.True(t, r.IsDegraded("m"))
}

func TestRegistry_CooldownResetsWindow(t *testing.T) {
	r := newTestRegistry(t, WithCooldown(30*time.Millisecond), WithMinSamples(1))
	require.NoError(t, r.Register(mock.NewMockProvider("m"), nil))

	r.record("m", time.Millisecond, core.TokenUsage{}, true, 0.5)
	require.True(t, r.IsDegraded("m"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, r.IsDegraded("m"))

	s, err := r.Metrics("m")
	require.NoError(t, err)
	assert.Equal(t, 0, s.WindowSize)
	assert.Equal(t, int64(1), s.ErrorCount)
}

func TestRegistry_MetricsAndCost(t *testing.T) {
	r := newTestRegistry(t)
	cfg := ai.NewConfig(ai.WithKind(ai.KindOpenAI), ai.WithModel("gpt-4o-mini"), ai.WithHost("http://localhost:1/v1"))
	require.NoError(t, r.Register(mock.NewMockProvider("gpt-4o-mini"), cfg))

	usage := core.TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000}
	usage.Cost = r.Cost("gpt-4o-mini", usage)
	assert.InDelta(t, 0.00075, usage.Cost, 1e-9)

	r.record("gpt-4o-mini", time.Second, usage, false, 0.5)
	r.record("gpt-4o-mini", time.Second, core.TokenUsage{}, true, 0.5)

	s, err := r.Metrics("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TotalRequests)
	assert.Equal(t, int64(1), s.ErrorCount)
	assert.Equal(t, 0.5, s.ErrorRate)
	assert.Equal(t, 0.5, s.WindowErrorRate)
	assert.InDelta(t, 1.0, s.AverageLatency, 1e-9)
	assert.InDelta(t, 1000.0, s.TokenThroughput, 1e-9)
	assert.InDelta(t, 0.00075, s.TotalTokens.Cost, 1e-9)
	assert.Equal(t, "openai", s.Provider)
}

func TestRegistry_Compare(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(mock.NewMockProvider("fast"), nil))
	require.NoError(t, r.Register(mock.NewMockProvider("slow"), nil))

	r.record("fast", time.Second, core.TokenUsage{TotalTokens: 100, Cost: 0.01}, false, 0.5)
	r.record("slow", 4*time.Second, core.TokenUsage{TotalTokens: 100}, false, 0.5)
	r.record("slow", 4*time.Second, core.TokenUsage{}, true, 0.5)

	c, err := r.Compare("fast", "slow")
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Benchmarks["fast"].SpeedScore)
	assert.Equal(t, 0.25, c.Benchmarks["slow"].SpeedScore)
	assert.Equal(t, 1.0, c.Benchmarks["fast"].ReliabilityScore)
	assert.Equal(t, 0.5, c.Benchmarks["slow"].ReliabilityScore)
	assert.InDelta(t, 0.1, c.CostAnalysis["fast"].CostPer1KTokens, 1e-9)
	assert.Equal(t, 0.0, c.Benchmarks["slow"].CostEfficiency)

	_, err = r.Compare("fast", "nope")
	assert.ErrorIs(t, err, ErrModelNotFound)
}
