package repository

import (
	"context"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// TicketCommentRepository manages ticket thread comments.
type TicketCommentRepository interface {
	Create(ctx context.Context, comment *domain.TicketComment) error
	// ListByTicket returns comments oldest first; internal notes are
	// included only when includeInternal is set.
	ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error)
}

type ticketCommentRepository struct {
	db DBTX
}

// NewTicketCommentRepository builds repository.
func NewTicketCommentRepository(db DBTX) TicketCommentRepository {
	return &ticketCommentRepository{db: db}
}

func (r *ticketCommentRepository) Create(ctx context.Context, comment *domain.TicketComment) error {
	const query = `
        INSERT INTO ticket_comments (id, ticket_id, author_id, body, is_internal, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Exec(ctx, query,
		comment.ID,
		comment.TicketID,
		comment.AuthorID,
		comment.Body,
		comment.IsInternal,
		comment.CreatedAt,
	)
	return mapError(err)
}

func (r *ticketCommentRepository) ListByTicket(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	const query = `
        SELECT id, ticket_id, author_id, body, is_internal, created_at
        FROM ticket_comments WHERE ticket_id=$1 AND ($2 OR NOT is_internal)
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID, includeInternal)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.TicketComment
	for rows.Next() {
		var comment domain.TicketComment
		if err := rows.Scan(
			&comment.ID,
			&comment.TicketID,
			&comment.AuthorID,
			&comment.Body,
			&comment.IsInternal,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}
