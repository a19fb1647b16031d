package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/clicklink/internal/app/apperr"
	"github.com/sifan077/clicklink/internal/app/service"
	inthttp "github.com/sifan077/clicklink/internal/http/handler"
	"github.com/sifan077/clicklink/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles the services the HTTP server exposes.
type Dependencies struct {
	Logger     *zap.Logger
	Allocator  inthttp.Allocator
	Resolver   inthttp.Resolver
	Clicks     inthttp.VisitRecorder
	Links      service.LinkService
	CORSOrigin string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "clicklink",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.Metrics())
	s.app.Use(middleware.CORS(s.deps.CORSOrigin))
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		Allocator:   s.deps.Allocator,
		LinkService: s.deps.Links,
	})
	apiHandler.Register(s.app)

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:   s.deps.Logger,
		Resolver: s.deps.Resolver,
		Clicks:   s.deps.Clicks,
	})
	redirectHandler.Register(s.app)
}

// errorHandler renders errors that escaped a handler, mostly Fiber's own
// routing errors, in the API's error shape.
func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kind := apperr.KindInternal

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		switch {
		case status == fiber.StatusNotFound:
			kind = apperr.KindNotFound
		case status < fiber.StatusInternalServerError:
			kind = apperr.KindInvalidInput
		}
	}

	return c.Status(status).JSON(inthttp.ErrorResponse{Error: err.Error(), Kind: kind})
}
