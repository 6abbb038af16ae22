package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/poiesic/kexpand/ai"
	"github.com/poiesic/kexpand/core"
)

type providerView struct {
	ID     ai.ProviderKind `json:"id"`
	Models int             `json:"models"`
}

type modelView struct {
	ai.ModelInfo
	Price      string `json:"price"`
	Registered bool   `json:"registered"`
}

type configureRequest struct {
	ai.Config
	// Price optionally overrides the catalog entry for the model.
	InputPricePer1K  *float64 `json:"input_price_per_1k"`
	OutputPricePer1K *float64 `json:"output_price_per_1k"`
}

type fallbackRequest struct {
	PrimaryModel   string             `json:"primary_model"`
	FallbackModels []string           `json:"fallback_models"`
	Triggers       map[string]float64 `json:"fallback_triggers"`
	MaxRetries     *int               `json:"max_retries"`
	// TimeoutSeconds bounds each attempt.
	TimeoutSeconds float64 `json:"timeout"`
}

type fallbackView struct {
	PrimaryModel   string             `json:"primary_model"`
	FallbackModels []string           `json:"fallback_models"`
	Triggers       map[string]float64 `json:"fallback_triggers"`
	MaxRetries     int                `json:"max_retries"`
	TimeoutSeconds float64            `json:"timeout"`
}

func newFallbackView(cfg core.FallbackConfig) fallbackView {
	models := cfg.FallbackModels
	if models == nil {
		models = []string{}
	}
	return fallbackView{
		PrimaryModel:   cfg.PrimaryModel,
		FallbackModels: models,
		Triggers:       cfg.Triggers,
		MaxRetries:     cfg.MaxRetries,
		TimeoutSeconds: cfg.Timeout.Seconds(),
	}
}

func (s *Server) llmProviders(c *fiber.Ctx) error {
	catalog := s.registry.Catalog()
	out := make([]providerView, 0, len(ai.Kinds))
	for _, kind := range ai.Kinds {
		models, err := catalog.Models(kind)
		if err != nil {
			return err
		}
		out = append(out, providerView{ID: kind, Models: len(models)})
	}
	return c.JSON(out)
}

func (s *Server) llmModels(c *fiber.Ctx) error {
	kind, err := ai.ParseKind(c.Params("provider"))
	if err != nil {
		return err
	}
	models, err := s.registry.Catalog().Models(kind)
	if err != nil {
		return err
	}
	out := make([]modelView, len(models))
	for i, m := range models {
		out[i] = modelView{ModelInfo: m, Price: m.PriceLabel(), Registered: s.registry.Has(m.Name)}
	}
	return c.JSON(out)
}

func (s *Server) llmConfigure(c *fiber.Ctx) error {
	var req configureRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	if req.InputPricePer1K != nil || req.OutputPricePer1K != nil {
		info, _ := s.registry.Catalog().Lookup(cfg.Kind, cfg.Model)
		info.Provider = cfg.Kind
		info.Name = cfg.Model
		if req.InputPricePer1K != nil {
			info.InputPricePer1K = *req.InputPricePer1K
		}
		if req.OutputPricePer1K != nil {
			info.OutputPricePer1K = *req.OutputPricePer1K
		}
		if info.InputPricePer1K < 0 || info.OutputPricePer1K < 0 {
			return fmt.Errorf("%w: prices must not be negative", core.ErrConfiguration)
		}
		s.registry.Catalog().Set(info)
	}
	name, err := s.registry.Configure(&cfg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "model": name})
}

func (s *Server) llmConfig(c *fiber.Ctx) error {
	return c.JSON(s.registry.Configs())
}

func (s *Server) llmConfigureFallback(c *fiber.Ctx) error {
	var req fallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	cfg := core.DefaultFallbackConfig(req.PrimaryModel)
	cfg.FallbackModels = req.FallbackModels
	if len(req.Triggers) > 0 {
		cfg.Triggers = req.Triggers
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.TimeoutSeconds != 0 {
		cfg.Timeout = time.Duration(req.TimeoutSeconds * float64(time.Second))
	}
	if err := s.registry.ConfigureFallback(cfg); err != nil {
		return err
	}
	return c.JSON(newFallbackView(cfg))
}

func (s *Server) llmFallback(c *fiber.Ctx) error {
	cfg, err := s.registry.Fallback(c.Params("model"))
	if err != nil {
		return err
	}
	return c.JSON(newFallbackView(cfg))
}

func (s *Server) llmAllMetrics(c *fiber.Ctx) error {
	return c.JSON(s.registry.AllMetrics())
}

func (s *Server) llmMetrics(c *fiber.Ctx) error {
	m, err := s.registry.Metrics(c.Params("model"))
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (s *Server) llmCompare(c *fiber.Ctx) error {
	var models []string
	for _, m := range strings.Split(c.Query("models"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return fmt.Errorf("%w: models query parameter is required", core.ErrConfiguration)
	}
	cmp, err := s.registry.Compare(models...)
	if err != nil {
		return err
	}
	return c.JSON(cmp)
}

// templateBody decodes a template from the request. Variables default to
// the placeholders used in the template text.
func templateBody(c *fiber.Ctx) (*core.PromptTemplate, error) {
	var tmpl core.PromptTemplate
	if err := c.BodyParser(&tmpl); err != nil {
		return nil, badRequest(err)
	}
	if tmpl.Variables == nil {
		tmpl.Variables = core.Placeholders(tmpl.Template)
	}
	return &tmpl, nil
}

func (s *Server) createTemplate(c *fiber.Ctx) error {
	tmpl, err := templateBody(c)
	if err != nil {
		return err
	}
	created, err := s.templates.Create(c.UserContext(), tmpl)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) listTemplates(c *fiber.Ctx) error {
	list, err := s.templates.List(c.UserContext())
	if err != nil {
		return err
	}
	if list == nil {
		list = []*core.PromptTemplate{}
	}
	return c.JSON(list)
}

func (s *Server) getTemplate(c *fiber.Ctx) error {
	tmpl, err := s.templates.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(tmpl)
}

func (s *Server) updateTemplate(c *fiber.Ctx) error {
	tmpl, err := templateBody(c)
	if err != nil {
		return err
	}
	updated, err := s.templates.Update(c.UserContext(), c.Params("id"), tmpl)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (s *Server) deleteTemplate(c *fiber.Ctx) error {
	if err := s.templates.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success"})
}
