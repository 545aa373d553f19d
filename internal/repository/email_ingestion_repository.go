package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// EmailIngestionFilter narrows ingestion listings.
type EmailIngestionFilter struct {
	Processed *bool
	Limit     int
	Offset    int
}

// EmailIngestionRepository persists inbound email records.
type EmailIngestionRepository interface {
	// Create fails with ErrAlreadyExists when the message id is known.
	Create(ctx context.Context, ingestion *domain.EmailIngestion) error
	Update(ctx context.Context, ingestion *domain.EmailIngestion) error
	GetByID(ctx context.Context, id string) (*domain.EmailIngestion, error)
	GetByMessageID(ctx context.Context, messageID string) (*domain.EmailIngestion, error)
	List(ctx context.Context, filter EmailIngestionFilter) ([]domain.EmailIngestion, int, error)
}

type emailIngestionRepository struct {
	db DBTX
}

// NewEmailIngestionRepository constructs repository.
func NewEmailIngestionRepository(db DBTX) EmailIngestionRepository {
	return &emailIngestionRepository{db: db}
}

const ingestionColumns = `id, message_id, subject, original_body, processed_body, from_email, from_name,
               received_at, processed_at, is_processed, processing_error, created_ticket_id`

func (r *emailIngestionRepository) Create(ctx context.Context, ingestion *domain.EmailIngestion) error {
	const query = `
        INSERT INTO email_ingestions (id, message_id, subject, original_body, processed_body, from_email, from_name,
            received_at, processed_at, is_processed, processing_error, created_ticket_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.db.Exec(ctx, query,
		ingestion.ID,
		ingestion.MessageID,
		ingestion.Subject,
		ingestion.OriginalBody,
		ingestion.ProcessedBody,
		ingestion.FromEmail,
		ingestion.FromName,
		ingestion.ReceivedAt,
		ingestion.ProcessedAt,
		ingestion.IsProcessed,
		ingestion.ProcessingError,
		ingestion.CreatedTicketID,
	)
	return mapError(err)
}

func (r *emailIngestionRepository) Update(ctx context.Context, ingestion *domain.EmailIngestion) error {
	const query = `
        UPDATE email_ingestions SET processed_body=$1, processed_at=$2, is_processed=$3,
            processing_error=$4, created_ticket_id=$5
        WHERE id=$6`
	cmd, err := r.db.Exec(ctx, query,
		ingestion.ProcessedBody,
		ingestion.ProcessedAt,
		ingestion.IsProcessed,
		ingestion.ProcessingError,
		ingestion.CreatedTicketID,
		ingestion.ID,
	)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *emailIngestionRepository) GetByID(ctx context.Context, id string) (*domain.EmailIngestion, error) {
	query := `SELECT ` + ingestionColumns + ` FROM email_ingestions WHERE id=$1`
	ingestion, err := scanIngestion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return ingestion, nil
}

func (r *emailIngestionRepository) GetByMessageID(ctx context.Context, messageID string) (*domain.EmailIngestion, error) {
	query := `SELECT ` + ingestionColumns + ` FROM email_ingestions WHERE message_id=$1`
	ingestion, err := scanIngestion(r.db.QueryRow(ctx, query, messageID))
	if err != nil {
		return nil, mapError(err)
	}
	return ingestion, nil
}

func (r *emailIngestionRepository) List(ctx context.Context, filter EmailIngestionFilter) ([]domain.EmailIngestion, int, error) {
	limit, offset := pageBounds(filter.Limit, filter.Offset)

	countBuilder := psql.Select("COUNT(*)").From("email_ingestions")
	listBuilder := psql.Select(ingestionColumns).From("email_ingestions")
	if filter.Processed != nil {
		countBuilder = countBuilder.Where("is_processed = ?", *filter.Processed)
		listBuilder = listBuilder.Where("is_processed = ?", *filter.Processed)
	}

	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query, args, err := listBuilder.OrderBy("received_at DESC").Limit(limit).Offset(offset).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var result []domain.EmailIngestion
	for rows.Next() {
		ingestion, err := scanIngestion(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *ingestion)
	}
	return result, total, rows.Err()
}

func scanIngestion(row pgx.Row) (*domain.EmailIngestion, error) {
	var ingestion domain.EmailIngestion
	if err := row.Scan(
		&ingestion.ID,
		&ingestion.MessageID,
		&ingestion.Subject,
		&ingestion.OriginalBody,
		&ingestion.ProcessedBody,
		&ingestion.FromEmail,
		&ingestion.FromName,
		&ingestion.ReceivedAt,
		&ingestion.ProcessedAt,
		&ingestion.IsProcessed,
		&ingestion.ProcessingError,
		&ingestion.CreatedTicketID,
	); err != nil {
		return nil, err
	}
	return &ingestion, nil
}
