package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// AttachmentRepository persists attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.TicketAttachment) error
	GetByID(ctx context.Context, id string) (*domain.TicketAttachment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAttachment, error)
	// UpdateToken replaces the download token. A token that was ever issued
	// before yields ErrAlreadyExists.
	UpdateToken(ctx context.Context, id, token string, expiresAt *time.Time) error
	Delete(ctx context.Context, id string) error
}

type attachmentRepository struct {
	db DBTX
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(db DBTX) AttachmentRepository {
	return &attachmentRepository{db: db}
}

const attachmentColumns = `id, ticket_id, uploaded_by_id, original_file_name, stored_file_name, content_type,
               size_bytes, checksum, uploaded_at, download_token, token_expires_at`

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.TicketAttachment) error {
	const query = `
        WITH issued AS (
            INSERT INTO issued_download_tokens (token) VALUES ($10) RETURNING token
        )
        INSERT INTO ticket_attachments (id, ticket_id, uploaded_by_id, original_file_name, stored_file_name,
            content_type, size_bytes, checksum, uploaded_at, download_token, token_expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,(SELECT token FROM issued),$11)`
	_, err := r.db.Exec(ctx, query,
		attachment.ID,
		attachment.TicketID,
		attachment.UploadedByID,
		attachment.OriginalFileName,
		attachment.StoredFileName,
		attachment.ContentType,
		attachment.SizeBytes,
		attachment.Checksum,
		attachment.UploadedAt,
		attachment.DownloadToken,
		attachment.TokenExpiresAt,
	)
	return mapError(err)
}

func (r *attachmentRepository) GetByID(ctx context.Context, id string) (*domain.TicketAttachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM ticket_attachments WHERE id=$1`
	attachment, err := scanAttachment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return attachment, nil
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketAttachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM ticket_attachments WHERE ticket_id=$1 ORDER BY uploaded_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.TicketAttachment
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *attachment)
	}
	return result, rows.Err()
}

func (r *attachmentRepository) UpdateToken(ctx context.Context, id, token string, expiresAt *time.Time) error {
	const query = `
        WITH issued AS (
            INSERT INTO issued_download_tokens (token) VALUES ($1) RETURNING token
        )
        UPDATE ticket_attachments SET download_token=(SELECT token FROM issued), token_expires_at=$2
        WHERE id=$3`
	cmd, err := r.db.Exec(ctx, query, token, expiresAt, id)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM ticket_attachments WHERE id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAttachment(row pgx.Row) (*domain.TicketAttachment, error) {
	var attachment domain.TicketAttachment
	if err := row.Scan(
		&attachment.ID,
		&attachment.TicketID,
		&attachment.UploadedByID,
		&attachment.OriginalFileName,
		&attachment.StoredFileName,
		&attachment.ContentType,
		&attachment.SizeBytes,
		&attachment.Checksum,
		&attachment.UploadedAt,
		&attachment.DownloadToken,
		&attachment.TokenExpiresAt,
	); err != nil {
		return nil, err
	}
	return &attachment, nil
}
