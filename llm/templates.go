package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/storage"
)

const templateStripes = 64

// Templates manages prompt templates backed by a storage.TemplateRepository.
type Templates struct {
	repo     storage.TemplateRepository
	registry *Registry
	// read-modify-writes of one template are serialized by its stripe
	locks [templateStripes]sync.Mutex
}

// NewTemplates creates a template store. When registry is non-nil, templates
// must name a registered model.
func NewTemplates(repo storage.TemplateRepository, registry *Registry) *Templates {
	return &Templates{repo: repo, registry: registry}
}

// Create validates tmpl, assigns an id and creation time, and stores it.
func (t *Templates) Create(ctx context.Context, tmpl *core.PromptTemplate) (*core.PromptTemplate, error) {
	out := *tmpl
	out.Id = uuid.NewString()
	out.CreatedAt = time.Now().UTC()
	out.LastUsed = time.Time{}
	out.UsageCount = 0
	if err := t.validate(&out); err != nil {
		return nil, err
	}
	if err := t.repo.SaveTemplate(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the template stored under id.
func (t *Templates) Get(ctx context.Context, id string) (*core.PromptTemplate, error) {
	tmpl, err := t.repo.GetTemplate(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tmpl, err
}

// List returns every template ordered by creation time.
func (t *Templates) List(ctx context.Context) ([]*core.PromptTemplate, error) {
	return t.repo.ListTemplates(ctx)
}

// Update replaces the editable fields of template id. Usage statistics and
// creation time are kept.
func (t *Templates) Update(ctx context.Context, id string, tmpl *core.PromptTemplate) (*core.PromptTemplate, error) {
	mu := t.lock(id)
	mu.Lock()
	defer mu.Unlock()
	existing, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := *tmpl
	out.Id = id
	out.CreatedAt = existing.CreatedAt
	out.LastUsed = existing.LastUsed
	out.UsageCount = existing.UsageCount
	if err := t.validate(&out); err != nil {
		return nil, err
	}
	if err := t.repo.SaveTemplate(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes template id.
func (t *Templates) Delete(ctx context.Context, id string) error {
	err := t.repo.DeleteTemplate(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return err
}

// Render substitutes vars into template id, then bumps its usage count and
// last-used time. Returns the template as stored after the update.
func (t *Templates) Render(ctx context.Context, id string, vars map[string]string) (*core.PromptTemplate, string, error) {
	mu := t.lock(id)
	mu.Lock()
	defer mu.Unlock()
	tmpl, err := t.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	text, err := core.RenderTemplate(tmpl, vars)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrInvalidTemplate, err)
	}
	tmpl.UsageCount++
	tmpl.LastUsed = time.Now().UTC()
	if err := t.repo.SaveTemplate(ctx, tmpl); err != nil {
		return nil, "", err
	}
	return tmpl, text, nil
}

func (t *Templates) lock(id string) *sync.Mutex {
	return &t.locks[templateStripe(id)]
}

func templateStripe(id string) uint64 {
	return uint64(core.IDFromContent(id)) % templateStripes
}

func (t *Templates) validate(tmpl *core.PromptTemplate) error {
	if err := core.ValidatePromptTemplate(tmpl); err != nil {
		return err
	}
	if t.registry != nil && tmpl.ModelName != "" && !t.registry.Has(tmpl.ModelName) {
		return fmt.Errorf("%w: %w: %s", core.ErrInvalidTemplate, core.ErrUnknownModel, tmpl.ModelName)
	}
	return nil
}
