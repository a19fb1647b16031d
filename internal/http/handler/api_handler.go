package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/sifan077/clicklink/internal/app/apperr"
	"github.com/sifan077/clicklink/internal/app/model"
	"github.com/sifan077/clicklink/internal/app/service"
	"go.uber.org/zap"
)

const defaultListLimit = 10

// Allocator creates short links.
type Allocator interface {
	Allocate(ctx context.Context, originalURL string) (*service.Allocation, error)
	ShortURL(code string) string
}

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	Allocator   Allocator
	LinkService service.LinkService
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger      *zap.Logger
	allocator   Allocator
	linkService service.LinkService
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger.Named("api"),
		allocator:   deps.Allocator,
		linkService: deps.LinkService,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:code", h.GetLink)
		}

		stats := api.Group("/stats")
		{
			stats.Get("/summary", h.Summary)
			stats.Get("/top-links", h.TopLinks)
			stats.Get("/hourly-trends", h.HourlyTrends)
		}
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	URL string `json:"url"`
}

// LinkResponse describes a stored mapping.
type LinkResponse struct {
	ShortCode   string    `json:"short_code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	VisitCount  int64     `json:"visit_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid request body",
			Kind:  apperr.KindInvalidInput,
		})
	}

	allocation, err := h.allocator.Allocate(requestContext(c), req.URL)
	if err != nil {
		return writeError(c, h.logger, "failed to create link", err)
	}

	return c.JSON(allocation)
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)

	links, err := h.linkService.RecentLinks(requestContext(c), limit)
	if err != nil {
		return writeError(c, h.logger, "failed to list links", err)
	}

	return c.JSON(fiber.Map{
		"links": h.toResponses(links),
		"count": len(links),
	})
}

// GetLink handles GET /api/links/:code
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	link, err := h.linkService.GetLink(requestContext(c), c.Params("code"))
	if err != nil {
		return writeError(c, h.logger, "failed to get link", err)
	}

	return c.JSON(h.toResponse(*link))
}

// Summary handles GET /api/stats/summary
func (h *APIHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.linkService.Summary(requestContext(c))
	if err != nil {
		return writeError(c, h.logger, "failed to load summary", err)
	}

	return c.JSON(fiber.Map{
		"total_links":  summary.TotalLinks,
		"total_visits": summary.TotalVisits,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// TopLinks handles GET /api/stats/top-links
func (h *APIHandler) TopLinks(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)

	links, err := h.linkService.TopLinks(requestContext(c), limit)
	if err != nil {
		return writeError(c, h.logger, "failed to load top links", err)
	}

	return c.JSON(fiber.Map{
		"links": h.toResponses(links),
		"count": len(links),
	})
}

// HourlyTrendsResponse is a chart-ready series of links created per UTC hour.
type HourlyTrendsResponse struct {
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
}

// HourlyTrends handles GET /api/stats/hourly-trends
func (h *APIHandler) HourlyTrends(c *fiber.Ctx) error {
	counts, err := h.linkService.HourlyTrends(requestContext(c))
	if err != nil {
		return writeError(c, h.logger, "failed to load hourly trends", err)
	}

	return c.JSON(HourlyTrendsResponse{
		Labels: lo.Times(len(counts), func(hour int) string { return fmt.Sprintf("%d:00", hour) }),
		Data:   counts[:],
	})
}

func (h *APIHandler) toResponse(link model.Link) LinkResponse {
	return LinkResponse{
		ShortCode:   link.Code,
		ShortURL:    h.allocator.ShortURL(link.Code),
		OriginalURL: link.URL,
		VisitCount:  link.VisitCount,
		CreatedAt:   time.Unix(link.CreatedAt, 0).UTC(),
	}
}

func (h *APIHandler) toResponses(links []model.Link) []LinkResponse {
	return lo.Map(links, func(link model.Link, _ int) LinkResponse {
		return h.toResponse(link)
	})
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
