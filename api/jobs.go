package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/poiesic/kexpand/core"
	"github.com/poiesic/kexpand/ingestion"
	"github.com/poiesic/kexpand/jobs"
	"github.com/poiesic/kexpand/storage"
)

type itemRequest struct {
	ID         string `json:"id"`
	Locator    string `json:"locator"`
	SourceType string `json:"source_type"`
}

type uploadRequest struct {
	Items  []itemRequest  `json:"items"`
	Config core.JobConfig `json:"config"`
}

type scrapeRequest struct {
	URLs           []string       `json:"urls"`
	MaxDepth       *int           `json:"max_depth"`
	FollowLinks    *bool          `json:"follow_links"`
	SameDomainOnly *bool          `json:"same_domain_only"`
	Config         core.JobConfig `json:"config"`
}

type controlRequest struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"`
}

type retryRequest struct {
	JobID string   `json:"job_id"`
	Items []string `json:"items"`
}

type historyResponse struct {
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Jobs   []*core.JobHistoryEntry `json:"jobs"`
}

// sourceTypeFor parses an item's source type. An empty type is inferred
// from the locator: http(s) URLs are web pages, anything else a document.
func sourceTypeFor(it itemRequest) (core.SourceType, error) {
	if strings.TrimSpace(it.SourceType) != "" {
		st, err := core.ParseSourceType(it.SourceType)
		if err != nil {
			return "", fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
		return st, nil
	}
	lower := strings.ToLower(strings.TrimSpace(it.Locator))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return core.SourceTypeWeb, nil
	}
	return core.SourceTypeDocument, nil
}

func (s *Server) uploadBulk(c *fiber.Ctx) error {
	req := uploadRequest{Config: s.jobDefaults}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	items := make([]ingestion.Item, 0, len(req.Items))
	for _, it := range req.Items {
		st, err := sourceTypeFor(it)
		if err != nil {
			return err
		}
		items = append(items, ingestion.Item{ID: it.ID, Locator: it.Locator, SourceType: st})
	}
	snap, err := s.controller.Submit(c.UserContext(), core.JobKindUpload, items, req.Config)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(snap)
}

func (s *Server) startScrape(c *fiber.Ctx) error {
	req := scrapeRequest{Config: s.jobDefaults}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	cfg := s.crawlDefaults
	if req.MaxDepth != nil {
		cfg.MaxDepth = *req.MaxDepth
	}
	if req.FollowLinks != nil {
		cfg.FollowLinks = *req.FollowLinks
	}
	if req.SameDomainOnly != nil {
		cfg.SameDomainOnly = *req.SameDomainOnly
	}
	snap, err := s.scheduler.Start(c.UserContext(), req.URLs, cfg, req.Config)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(snap)
}

func (s *Server) scrapeStatus(c *fiber.Ctx) error {
	snap, err := s.controller.Status(c.Params("id"))
	if err != nil {
		return err
	}
	if snap.Kind != core.JobKindCrawl {
		return fmt.Errorf("%w: %s is not a crawl job", jobs.ErrJobNotFound, snap.JobID)
	}
	return c.JSON(snap)
}

func (s *Server) batchList(c *fiber.Ctx) error {
	return c.JSON(s.controller.List())
}

func (s *Server) batchStatus(c *fiber.Ctx) error {
	snap, err := s.controller.Status(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *Server) batchControl(c *fiber.Ctx) error {
	var req controlRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	action, err := jobs.ParseAction(req.Action)
	if err != nil {
		return err
	}
	snap, err := s.controller.Control(req.JobID, action)
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

// batchRetry re-queues the listed items, or every failed item when the
// request lists none.
func (s *Server) batchRetry(c *fiber.Ctx) error {
	var req retryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	ids := req.Items
	if len(ids) == 0 {
		snap, err := s.controller.Status(req.JobID)
		if err != nil {
			return err
		}
		for _, it := range snap.Failed() {
			ids = append(ids, it.ID)
		}
	}
	snap, err := s.controller.Retry(req.JobID, ids)
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *Server) batchConfigure(c *fiber.Ctx) error {
	current, err := s.controller.Status(c.Params("id"))
	if err != nil {
		return err
	}
	cfg := current.Config
	if err := c.BodyParser(&cfg); err != nil {
		return badRequest(err)
	}
	snap, err := s.controller.Configure(current.JobID, cfg)
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *Server) batchMetrics(c *fiber.Ctx) error {
	m, err := s.controller.Metrics(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (s *Server) batchExport(c *fiber.Ctx) error {
	id := c.Params("id")
	format := c.Query("format", jobs.FormatJSON)
	data, mime, err := s.controller.Export(id, format)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, mime)
	c.Attachment(fmt.Sprintf("job-%s.%s", id, format))
	return c.Send(data)
}

func (s *Server) batchHistory(c *fiber.Ctx) error {
	query := storage.HistoryQuery{
		Kind:   core.JobKind(c.Query("job_type")),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if query.Limit < 0 || query.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", core.ErrConfiguration)
	}
	if raw := c.Query("min_success_rate"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate < 0 || rate > 1 {
			return fmt.Errorf("%w: min_success_rate must be a number in [0,1]", core.ErrConfiguration)
		}
		query.MinSuccessRate = rate
	}
	entries, total, err := s.controller.History(c.UserContext(), query)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*core.JobHistoryEntry{}
	}
	return c.JSON(historyResponse{Total: total, Limit: query.Limit, Offset: query.Offset, Jobs: entries})
}

func (s *Server) batchAnalytics(c *fiber.Ctx) error {
	filter := jobs.AnalyticsFilter{Kind: core.JobKind(c.Query("job_type"))}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(err)
		}
		filter.Since = since
	}
	return c.JSON(s.controller.Analytics(filter))
}
