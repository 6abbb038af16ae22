package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/ai/mock"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
	"github.com/poiesic/kexpand/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTemplates(t *testing.T) (*Templates, *Registry) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := newTestRegistry(t)
	require.NoError(t, r.Register(mock.NewMockProvider("m"), nil))
	return NewTemplates(store.Templates, r), r
}

func greeting() *core.PromptTemplate {
	return &core.PromptTemplate{
		Name:        "greet",
		Template:    "Say hello to {name} in {lang}.",
		Variables:   []string{"name", "lang"},
		ModelName:   "m",
		Temperature: 0.2,
	}
}

func TestTemplates_CRUD(t *testing.T) {
	tpl, _ := setupTemplates(t)
	ctx := context.Background()

	created, err := tpl.Create(ctx, greeting())
	require.NoError(t, err)
	assert.NotEmpty(t, created.Id)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := tpl.Get(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "greet", got.Name)

	upd := greeting()
	upd.Template = "Greet {name} in {lang}, briefly."
	updated, err := tpl.Update(ctx, created.Id, upd)
	require.NoError(t, err)
	assert.Equal(t, created.Id, updated.Id)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	list, err := tpl.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, tpl.Delete(ctx, created.Id))
	_, err = tpl.Get(ctx, created.Id)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.ErrorIs(t, tpl.Delete(ctx, created.Id), ErrTemplateNotFound)
}

func TestTemplates_Validation(t *testing.T) {
	tpl, _ := setupTemplates(t)
	ctx := context.Background()

	bad := greeting()
	bad.Variables = []string{"name"}
	_, err := tpl.Create(ctx, bad)
	assert.ErrorIs(t, err, core.ErrVariableMismatch)
	assert.ErrorIs(t, err, core.ErrConfiguration)

	unknown := greeting()
	unknown.ModelName = "ghost"
	_, err = tpl.Create(ctx, unknown)
	assert.ErrorIs(t, err, core.ErrUnknownModel)
}

func TestTemplates_RenderCountsUsage(t *testing.T) {
	tpl, _ := setupTemplates(t)
	ctx := context.Background()
	created, err := tpl.Create(ctx, greeting())
	require.NoError(t, err)

	vars := map[string]string{"name": "Ada", "lang": "French"}
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, text, err := tpl.Render(ctx, created.Id, vars)
			assert.NoError(t, err)
			assert.Equal(t, "Say hello to Ada in French.", text)
		}()
	}
	wg.Wait()

	got, err := tpl.Get(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.UsageCount)
	assert.False(t, got.LastUsed.IsZero())

	_, _, err = tpl.Render(ctx, created.Id, map[string]string{"name": "Ada"})
	assert.ErrorIs(t, err, core.ErrMissingVariable)
}

// gatedRepo blocks reads of one template until the gate is closed.
type gatedRepo struct {
	storage.TemplateRepository
	blocked string
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedRepo) GetTemplate(ctx context.Context, id string) (*core.PromptTemplate, error) {
	if id == g.blocked {
		close(g.entered)
		<-g.gate
	}
	return g.TemplateRepository.GetTemplate(ctx, id)
}

func TestTemplates_RenderDoesNotSerializeUnrelatedTemplates(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	repo := &gatedRepo{TemplateRepository: store.Templates, entered: make(chan struct{}), gate: make(chan struct{})}
	tpl := NewTemplates(repo, nil)
	ctx := context.Background()

	slow, err := tpl.Create(ctx, greeting())
	require.NoError(t, err)
	var fast *core.PromptTemplate
	for fast == nil || templateStripe(fast.Id) == templateStripe(slow.Id) {
		fast, err = tpl.Create(ctx, greeting())
		require.NoError(t, err)
	}
	repo.blocked = slow.Id

	vars := map[string]string{"name": "Ada", "lang": "French"}
	slowDone := make(chan error, 1)
	go func() {
		_, _, err := tpl.Render(ctx, slow.Id, vars)
		slowDone <- err
	}()
	<-repo.entered

	fastDone := make(chan error, 1)
	go func() {
		_, _, err := tpl.Render(ctx, fast.Id, vars)
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("render of an unrelated template waited on a busy one")
	}

	close(repo.gate)
	assert.NoError(t, <-slowDone)
}

func TestRouter_InvokeTemplate(t *testing.T) {
	tpl, r := setupTemplates(t)
	ctx := context.Background()
	created, err := tpl.Create(ctx, greeting())
	require.NoError(t, err)

	var seen ai.Request
	p := mock.NewMockProvider("m")
	p.GenerateFunc = func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		seen = req
		return &ai.Response{Text: "bonjour"}, nil
	}
	require.NoError(t, r.Register(p, nil))

	router, err := NewRouter(r, tpl)
	require.NoError(t, err)
	res, err := router.Invoke(ctx, Invocation{
		TemplateID: created.Id,
		Variables:  map[string]string{"name": "Ada", "lang": "French"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", res.Text)
	assert.Equal(t, "m", res.Model)
	assert.Equal(t, "Say hello to Ada in French.", seen.Prompt)
	require.NotNil(t, seen.Temperature)
	assert.Equal(t, 0.2, *seen.Temperature)
}
