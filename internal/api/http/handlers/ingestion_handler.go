package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/helpline-labs/support-desk/internal/api/dto"
	"github.com/helpline-labs/support-desk/internal/service"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// IngestionHandler exposes email ingestion to staff and the mail relay.
type IngestionHandler struct {
	service *service.IngestionService
}

func NewIngestionHandler(ingestionService *service.IngestionService) *IngestionHandler {
	return &IngestionHandler{service: ingestionService}
}

// Process POST /api/email-ingestion/process.
// A failed ticket creation answers 202: the record is kept for retry.
func (h *IngestionHandler) Process(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ProcessEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.Process(c.UserContext(), principal, service.InboundEmail{
		MessageID: req.MessageID,
		Subject:   req.Subject,
		Body:      req.Body,
		FromEmail: req.FromEmail,
		FromName:  req.FromName,
	})
	if err != nil {
		return err
	}
	return respondResult(c, result, http.StatusCreated)
}

// List GET /api/email-ingestion?page=&page_size=&processed=.
func (h *IngestionHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	page, pageSize := parsePage(c)
	items, total, err := h.service.List(c.UserContext(), principal, service.IngestionListFilter{
		Processed: parseBool(c.Query("processed")),
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	})
	if err != nil {
		return err
	}
	resp := make([]dto.IngestionResponse, 0, len(items))
	for i := range items {
		resp = append(resp, dto.NewIngestionResponse(&items[i]))
	}
	totalPages := (total + pageSize - 1) / pageSize
	return c.JSON(fiber.Map{
		"data": resp,
		"meta": dto.PageMeta{Page: page, PageSize: pageSize, Total: &total, TotalPages: &totalPages},
	})
}

// Get GET /api/email-ingestion/:id.
func (h *IngestionHandler) Get(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	record, err := h.service.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIngestionResponse(record)})
}

// Retry POST /api/email-ingestion/:id/retry.
func (h *IngestionHandler) Retry(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.service.Retry(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return respondResult(c, result, http.StatusOK)
}

func respondResult(c *fiber.Ctx, result *service.IngestionResult, okStatus int) error {
	status := okStatus
	if !result.Success {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.IngestionResultResponse{
		IngestionID:     result.Ingestion.ID,
		Success:         result.Success,
		CreatedTicketID: result.CreatedTicketID,
		ProcessedBody:   result.ProcessedBody,
		Error:           result.Error,
	}})
}
