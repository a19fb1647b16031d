package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// Resolver looks up the target of a short code.
type Resolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// VisitRecorder records a visit without blocking the caller.
type VisitRecorder interface {
	RecordVisit(code string)
}

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger   *zap.Logger
	Resolver Resolver
	Clicks   VisitRecorder
}

// RedirectHandler serves short code redirects.
type RedirectHandler struct {
	logger   *zap.Logger
	resolver Resolver
	clicks   VisitRecorder
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:   logger.Named("redirect"),
		resolver: deps.Resolver,
		clicks:   deps.Clicks,
	}
}

// Register wires redirect routes onto the provided router. It must be
// registered after the API routes because /:code matches any single segment.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/:code", h.Redirect)
}

// Health is a liveness endpoint.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "clicklink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Redirect handles GET /:code. The visit is recorded fire-and-forget, so a
// queue outage never turns a found link into an error.
func (h *RedirectHandler) Redirect(c *fiber.Ctx) error {
	// Params aliases fasthttp's request buffer, which is reused once the
	// handler returns; the publish goroutine outlives it.
	code := utils.CopyString(c.Params("code"))

	target, err := h.resolver.Resolve(requestContext(c), code)
	if err != nil {
		return writeError(c, h.logger, "failed to resolve link", err)
	}

	if h.clicks != nil {
		h.clicks.RecordVisit(code)
	}

	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", target))
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Redirect(target, fiber.StatusMovedPermanently)
}
