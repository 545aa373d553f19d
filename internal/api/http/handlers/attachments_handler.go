package handlers

import (
	"mime"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/api/dto"
	"github.com/helpline-labs/support-desk/internal/service"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// AttachmentsHandler serves upload, listing and token-gated download.
type AttachmentsHandler struct {
	service *service.AttachmentService
	logger  *zap.Logger
}

func NewAttachmentsHandler(attachmentService *service.AttachmentService, logger *zap.Logger) *AttachmentsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentsHandler{service: attachmentService, logger: logger}
}

// Upload POST /api/attachments/upload/:ticketId with multipart field "file".
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("no file uploaded", map[string]any{"file": "required"})
	}
	f, err := fh.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer f.Close()

	att, err := h.service.Upload(c.UserContext(), principal, c.Params("ticketId"), service.UploadInput{
		Content:     f,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAttachmentResponse(att)})
}

// Download GET /api/attachments/download/:id?token=.
func (h *AttachmentsHandler) Download(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	dl, err := h.service.Download(c.UserContext(), principal, c.Params("id"), c.Query("token"))
	if err != nil {
		return err
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": dl.Attachment.OriginalFileName})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Set(fiber.HeaderContentType, dl.Attachment.ContentType)
	c.Set(fiber.HeaderContentDisposition, disposition)
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	// The stream is closed by fasthttp once the body is written.
	return c.SendStream(dl.Content, int(dl.Attachment.SizeBytes))
}

// ListForTicket GET /api/attachments/ticket/:ticketId.
func (h *AttachmentsHandler) ListForTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	list, err := h.service.List(c.UserContext(), principal, c.Params("ticketId"))
	if err != nil {
		return err
	}
	items := make([]dto.AttachmentResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewAttachmentResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Delete DELETE /api/attachments/:id.
func (h *AttachmentsHandler) Delete(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RotateToken POST /api/attachments/:id/rotate-token.
func (h *AttachmentsHandler) RotateToken(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	att, err := h.service.RotateToken(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	h.logger.Info("download token rotated", zap.String("attachment_id", att.ID), zap.String("user_id", principal.ID))
	return c.JSON(fiber.Map{"data": dto.NewAttachmentResponse(att)})
}
