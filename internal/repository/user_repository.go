package repository

import (
	"context"
	"strings"

	"github.com/helpline-labs/support-desk/internal/domain"
)

// UserRepository defines persistence access for desk accounts.
type UserRepository interface {
	// Create fails with ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (id, email, first_name, last_name, roles, email_confirmed, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.FirstName,
		user.LastName,
		rolesToStrings(user.Roles),
		user.EmailConfirmed,
		user.IsActive,
		user.CreatedAt,
	)
	return mapError(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
        SELECT id, email, first_name, last_name, roles, email_confirmed, is_active, created_at
        FROM users WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, email, first_name, last_name, roles, email_confirmed, is_active, created_at
        FROM users WHERE email=$1`
	return r.fetchSingle(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	var roles []string
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&roles,
		&user.EmailConfirmed,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	user.Roles = make([]domain.Role, 0, len(roles))
	for _, role := range roles {
		user.Roles = append(user.Roles, domain.Role(role))
	}
	return &user, nil
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}
