package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/observability"
)

// ServerOptions tunes the fiber app.
type ServerOptions struct {
	AppName        string
	BodyLimit      int
	RequestTimeout time.Duration
}

// NewServer builds the fiber app with middlewares and routes registered.
func NewServer(opts ServerOptions, logger *zap.Logger, metrics *observability.Metrics, routes RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               opts.AppName,
		BodyLimit:             opts.BodyLimit,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, opts.RequestTimeout)
	RegisterRoutes(app, routes)
	return app
}
