package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline-labs/support-desk/internal/domain"
)

var userCols = []string{"id", "email", "first_name", "last_name", "roles", "email_confirmed", "is_active", "created_at"}

func TestUserRepository_Create(t *testing.T) {
	created := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr error
	}{
		{
			name: "email stored lowercased",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs("u-1", "jane.roe@example.com", "Jane", "Roe", []string{"Customer"}, false, true, created).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "email taken",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
			},
			wantErr: ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			err := NewUserRepository(mock).Create(context.Background(), &domain.User{
				ID:        "u-1",
				Email:     "Jane.Roe@Example.COM",
				FirstName: "Jane",
				LastName:  "Roe",
				Roles:     []domain.Role{domain.RoleCustomer},
				IsActive:  true,
				CreatedAt: created,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	created := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	t.Run("lookup is lowercased", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE email=\$1`).WithArgs("jane.roe@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(
				"u-1", "jane.roe@example.com", "Jane", "Roe", []string{"Agent", "Admin"}, true, true, created))

		user, err := NewUserRepository(mock).GetByEmail(context.Background(), "  Jane.Roe@EXAMPLE.com ")
		require.NoError(t, err)
		assert.Equal(t, "u-1", user.ID)
		assert.Equal(t, []domain.Role{domain.RoleAgent, domain.RoleAdmin}, user.Roles)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown address", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM users WHERE email=\$1`).WithArgs("nobody@example.com").WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).GetByEmail(context.Background(), "Nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
