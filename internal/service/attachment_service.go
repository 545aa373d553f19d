package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/clock"
	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/policy"
	"github.com/helpline-labs/support-desk/internal/repository"
	apperrors "github.com/helpline-labs/support-desk/pkg/util"
)

// maxTokenAttempts bounds regeneration when a fresh token collides with one
// issued before.
const maxTokenAttempts = 3

// AttachmentService validates, stores and serves ticket attachments.
type AttachmentService struct {
	tickets     repository.TicketRepository
	attachments repository.AttachmentRepository
	validator   *attachment.Validator
	files       *attachment.Store
	dispatcher  events.Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
}

// AttachmentDependencies bundles collaborators for AttachmentService.
type AttachmentDependencies struct {
	TicketRepo     repository.TicketRepository
	AttachmentRepo repository.AttachmentRepository
	Validator      *attachment.Validator
	Files          *attachment.Store
	Dispatcher     events.Dispatcher
	Clock          clock.Clock
	Logger         *zap.Logger
}

// UploadInput describes an incoming file.
type UploadInput struct {
	Content     io.ReadSeeker
	FileName    string
	ContentType string
	Size        int64
}

// Download is an open attachment ready to stream.
type Download struct {
	Attachment *domain.TicketAttachment
	Content    io.ReadCloser
}

func NewAttachmentService(deps AttachmentDependencies) *AttachmentService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = attachment.NewValidator(attachment.DefaultMaxSizeBytes)
	}
	return &AttachmentService{
		tickets:     deps.TicketRepo,
		attachments: deps.AttachmentRepo,
		validator:   deps.Validator,
		files:       deps.Files,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
	}
}

// Upload validates the file, writes it under a generated name and records
// it against the ticket.
func (s *AttachmentService) Upload(ctx context.Context, p domain.Principal, ticketID string, in UploadInput) (*domain.TicketAttachment, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	if err := policy.AuthorizeAttachmentAccess(p, ticket).Err(); err != nil {
		return nil, err
	}
	if in.Content == nil {
		return nil, apperrors.NewValidationError("No file provided.", nil)
	}

	result := s.validator.Validate(in.Content, in.FileName, in.ContentType, in.Size)
	if !result.Valid {
		s.logger.Info("attachment rejected",
			zap.String("ticket_id", ticketID),
			zap.String("reason", string(result.Rejection)))
		return nil, result.Err()
	}

	stored, err := s.files.Save(ctx, in.Content, in.FileName, result.DetectedContentType)
	if err != nil {
		s.logger.Error("attachment store failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil, err
	}

	expires := stored.TokenExpiresAt
	att := &domain.TicketAttachment{
		ID:               uuid.NewString(),
		TicketID:         ticket.ID,
		UploadedByID:     p.ID,
		OriginalFileName: displayName(in.FileName),
		StoredFileName:   stored.StorageName,
		ContentType:      result.DetectedContentType,
		SizeBytes:        stored.SizeBytes,
		Checksum:         stored.Checksum,
		UploadedAt:       s.clock.Now(),
		DownloadToken:    stored.DownloadToken,
		TokenExpiresAt:   &expires,
	}
	if err := s.createRecord(ctx, att); err != nil {
		if _, rmErr := s.files.Delete(ctx, stored.StorageName); rmErr != nil {
			s.logger.Warn("failed to remove orphaned attachment bytes",
				zap.String("storage_name", stored.StorageName), zap.Error(rmErr))
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventAttachmentUploaded,
		TicketID: ticket.ID,
		Actor:    events.UserActor(p),
		Payload: events.AttachmentPayload{
			AttachmentID: att.ID,
			FileName:     att.OriginalFileName,
			ContentType:  att.ContentType,
			SizeBytes:    att.SizeBytes,
		},
	})
	return att, nil
}

// createRecord inserts att, drawing a new token if the first one was
// issued before.
func (s *AttachmentService) createRecord(ctx context.Context, att *domain.TicketAttachment) error {
	for attempt := 0; ; attempt++ {
		err := s.attachments.Create(ctx, att)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrAlreadyExists) || attempt+1 == maxTokenAttempts {
			return mapRepoError(err, "attachment")
		}
		token, tokErr := attachment.GenerateDownloadToken()
		if tokErr != nil {
			return apperrors.NewInternalError(tokErr)
		}
		att.DownloadToken = token
	}
}

// Download checks the token first and the caller's access second, then
// opens the bytes. Every token failure looks the same to the caller.
func (s *AttachmentService) Download(ctx context.Context, p domain.Principal, attachmentID, token string) (*Download, error) {
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, mapRepoError(err, "attachment")
	}
	if err := attachment.VerifyDownload(att, token, s.clock.Now()); err != nil {
		s.logger.Info("download token rejected",
			zap.String("attachment_id", attachmentID),
			zap.Bool("expired", errors.Is(err, attachment.ErrTokenExpired)))
		return nil, apperrors.NewAuthorizationDenied(policy.PolicyAccessAttachment)
	}
	ticket, err := s.tickets.GetByID(ctx, att.TicketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	if err := policy.AuthorizeAttachmentAccess(p, ticket).Err(); err != nil {
		return nil, err
	}

	rc, err := s.files.Open(ctx, att.StoredFileName)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			s.logger.Error("attachment read failed", zap.String("attachment_id", att.ID), zap.Error(err))
		}
		return nil, err
	}
	return &Download{Attachment: att, Content: rc}, nil
}

// List returns a ticket's attachments.
func (s *AttachmentService) List(ctx context.Context, p domain.Principal, ticketID string) ([]domain.TicketAttachment, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, "ticket")
	}
	if err := policy.AuthorizeAttachmentAccess(p, ticket).Err(); err != nil {
		return nil, err
	}
	list, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, mapRepoError(err, "attachment")
	}
	return list, nil
}

// Delete removes the record and its bytes. Missing bytes are not an error.
func (s *AttachmentService) Delete(ctx context.Context, p domain.Principal, attachmentID string) error {
	if err := policy.CanManageAttachments(p).Err(); err != nil {
		return err
	}
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return mapRepoError(err, "attachment")
	}
	if err := s.attachments.Delete(ctx, att.ID); err != nil {
		return mapRepoError(err, "attachment")
	}
	removed, err := s.files.Delete(ctx, att.StoredFileName)
	if err != nil {
		s.logger.Warn("failed to remove attachment bytes", zap.String("attachment_id", att.ID), zap.Error(err))
	} else if !removed {
		s.logger.Info("attachment bytes already absent", zap.String("attachment_id", att.ID))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventAttachmentDeleted,
		TicketID: att.TicketID,
		Actor:    events.UserActor(p),
		Payload:  events.AttachmentPayload{AttachmentID: att.ID},
	})
	return nil
}

// RotateToken issues a new download token with a fresh expiry. The old token
// stops working immediately and is never issued again.
func (s *AttachmentService) RotateToken(ctx context.Context, p domain.Principal, attachmentID string) (*domain.TicketAttachment, error) {
	if err := policy.CanManageAttachments(p).Err(); err != nil {
		return nil, err
	}
	att, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, mapRepoError(err, "attachment")
	}

	expires := s.files.TokenExpiry()
	for attempt := 0; ; attempt++ {
		token, err := attachment.GenerateDownloadToken()
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		err = s.attachments.UpdateToken(ctx, att.ID, token, &expires)
		if err == nil {
			att.DownloadToken = token
			att.TokenExpiresAt = &expires
			return att, nil
		}
		if !errors.Is(err, repository.ErrAlreadyExists) || attempt+1 == maxTokenAttempts {
			return nil, mapRepoError(err, "attachment")
		}
	}
}

func (s *AttachmentService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.clock, event)
}

// displayName keeps only the base name of an untrusted upload name.
func displayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "file"
	}
	return base
}
