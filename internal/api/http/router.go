package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpline-labs/support-desk/internal/api/http/handlers"
	"github.com/helpline-labs/support-desk/internal/auth"
	"github.com/helpline-labs/support-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Tickets        *handlers.TicketsHandler
	Attachments    *handlers.AttachmentsHandler
	Ingestion      *handlers.IngestionHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Per-resource authorization lives in the
// services; route guards only reject callers lacking any permitted role.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/metrics", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), cfg.Metrics.Snapshot)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Put("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/assign-self", auth.RequireStaff(), cfg.Tickets.SelfAssign)
	tickets.Put("/:id/assignee", auth.RequireStaff(), cfg.Tickets.Assign)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)

	attachments := api.Group("/attachments")
	attachments.Post("/upload/:ticketId", cfg.Attachments.Upload)
	attachments.Get("/download/:id", cfg.Attachments.Download)
	attachments.Get("/ticket/:ticketId", cfg.Attachments.ListForTicket)
	attachments.Delete("/:id", auth.RequireStaff(), cfg.Attachments.Delete)
	attachments.Post("/:id/rotate-token", auth.RequireStaff(), cfg.Attachments.RotateToken)

	ingestion := api.Group("/email-ingestion", auth.RequireStaff())
	ingestion.Post("/process", cfg.Ingestion.Process)
	ingestion.Get("/", cfg.Ingestion.List)
	ingestion.Get("/:id", cfg.Ingestion.Get)
	ingestion.Post("/:id/retry", cfg.Ingestion.Retry)
}
