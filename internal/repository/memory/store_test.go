package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/repository"
)

var base = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func seedTicket(t *testing.T, s *Store, id, customer string) *domain.Ticket {
	t.Helper()
	tk := &domain.Ticket{
		ID:          id,
		Title:       "Printer jam",
		Description: "Paper stuck in tray 2",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityMedium,
		CustomerID:  customer,
		CreatedAt:   base,
	}
	require.NoError(t, s.Tickets().Create(context.Background(), tk))
	return tk
}

func TestTicketUpdate_OptimisticVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t-1", "c-1")

	first, err := s.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)
	second, err := s.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)

	first.Status = domain.TicketStatusInProgress
	require.NoError(t, s.Tickets().Update(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = domain.TicketStatusClosed
	assert.ErrorIs(t, s.Tickets().Update(ctx, second), repository.ErrVersionConflict)

	stored, err := s.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)

	missing := &domain.Ticket{ID: "nope", Version: 1}
	assert.ErrorIs(t, s.Tickets().Update(ctx, missing), repository.ErrNotFound)
}

func TestTicketDelete_Cascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t-1", "c-1")
	seedTicket(t, s, "t-2", "c-1")

	require.NoError(t, s.Comments().Create(ctx, &domain.TicketComment{ID: "cm-1", TicketID: "t-1", Body: "hi", CreatedAt: base}))
	require.NoError(t, s.Comments().Create(ctx, &domain.TicketComment{ID: "cm-2", TicketID: "t-2", Body: "hi", CreatedAt: base}))
	require.NoError(t, s.History().Create(ctx, &domain.TicketHistory{ID: "h-1", TicketID: "t-1", CreatedAt: base}))
	require.NoError(t, s.Attachments().Create(ctx, &domain.TicketAttachment{ID: "a-1", TicketID: "t-1", DownloadToken: "tok-1"}))

	ticketID := "t-1"
	require.NoError(t, s.EmailIngestions().Create(ctx, &domain.EmailIngestion{ID: "e-1", MessageID: "<m1>", CreatedTicketID: &ticketID}))

	require.NoError(t, s.Tickets().Delete(ctx, "t-1"))

	comments, err := s.Comments().ListByTicket(ctx, "t-1", true)
	require.NoError(t, err)
	assert.Empty(t, comments)

	others, err := s.Comments().ListByTicket(ctx, "t-2", true)
	require.NoError(t, err)
	assert.Len(t, others, 1)

	history, err := s.History().ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = s.Attachments().GetByID(ctx, "a-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ingestion, err := s.EmailIngestions().GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Nil(t, ingestion.CreatedTicketID)

	assert.ErrorIs(t, s.Tickets().Delete(ctx, "t-1"), repository.ErrNotFound)
}

func TestTicketList_FiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		tk := &domain.Ticket{
			ID:         id,
			Title:      "Ticket " + id,
			Status:     domain.TicketStatusOpen,
			Priority:   domain.TicketPriorityLow,
			CustomerID: "c-1",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, s.Tickets().Create(ctx, tk))
	}
	seedTicket(t, s, "t-9", "c-2")

	customer := "c-1"
	got, err := s.Tickets().List(ctx, repository.TicketFilter{CustomerID: &customer, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-3", got[0].ID)
	assert.Equal(t, "t-2", got[1].ID)

	term := "T-1"
	got, err = s.Tickets().List(ctx, repository.TicketFilter{SearchTerm: &term})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t-1", got[0].ID)
}

func TestComments_InternalHidden(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t-1", "c-1")

	require.NoError(t, s.Comments().Create(ctx, &domain.TicketComment{ID: "c1", TicketID: "t-1", CreatedAt: base}))
	require.NoError(t, s.Comments().Create(ctx, &domain.TicketComment{ID: "c2", TicketID: "t-1", IsInternal: true, CreatedAt: base.Add(time.Minute)}))

	public, err := s.Comments().ListByTicket(ctx, "t-1", false)
	require.NoError(t, err)
	assert.Len(t, public, 1)

	all, err := s.Comments().ListByTicket(ctx, "t-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.Comments().Create(ctx, &domain.TicketComment{ID: "c3", TicketID: "missing"}), repository.ErrNotFound)
}

func TestAttachmentTokens_NeverReissued(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t-1", "c-1")

	require.NoError(t, s.Attachments().Create(ctx, &domain.TicketAttachment{ID: "a-1", TicketID: "t-1", DownloadToken: "tok-1"}))
	assert.ErrorIs(t,
		s.Attachments().Create(ctx, &domain.TicketAttachment{ID: "a-2", TicketID: "t-1", DownloadToken: "tok-1"}),
		repository.ErrAlreadyExists)

	require.NoError(t, s.Attachments().Create(ctx, &domain.TicketAttachment{ID: "a-3", TicketID: "t-1", DownloadToken: "tok-3"}))

	exp := base.Add(time.Hour)
	require.NoError(t, s.Attachments().UpdateToken(ctx, "a-1", "tok-2", &exp))
	assert.ErrorIs(t, s.Attachments().UpdateToken(ctx, "a-1", "tok-3", &exp), repository.ErrAlreadyExists)
	assert.ErrorIs(t, s.Attachments().UpdateToken(ctx, "a-3", "tok-1", &exp), repository.ErrAlreadyExists, "rotated-out token")
	assert.ErrorIs(t, s.Attachments().UpdateToken(ctx, "missing", "tok-9", &exp), repository.ErrNotFound)

	got, err := s.Attachments().GetByID(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.DownloadToken)
	assert.Equal(t, exp, *got.TokenExpiresAt)
}

func TestEmailIngestions_UniqueMessageAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.EmailIngestions().Create(ctx, &domain.EmailIngestion{ID: "e-1", MessageID: "<a@x>", ReceivedAt: base}))
	require.NoError(t, s.EmailIngestions().Create(ctx, &domain.EmailIngestion{ID: "e-2", MessageID: "<b@x>", ReceivedAt: base.Add(time.Minute), IsProcessed: true}))
	assert.ErrorIs(t,
		s.EmailIngestions().Create(ctx, &domain.EmailIngestion{ID: "e-3", MessageID: "<a@x>"}),
		repository.ErrAlreadyExists)

	byMsg, err := s.EmailIngestions().GetByMessageID(ctx, "<b@x>")
	require.NoError(t, err)
	assert.Equal(t, "e-2", byMsg.ID)

	pending := false
	items, total, err := s.EmailIngestions().List(ctx, repository.EmailIngestionFilter{Processed: &pending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "e-1", items[0].ID)
}

func TestUsers_EmailCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Users().Create(ctx, &domain.User{ID: "u-1", Email: "Jane@Example.com", Roles: []domain.Role{domain.RoleCustomer}}))
	assert.ErrorIs(t, s.Users().Create(ctx, &domain.User{ID: "u-2", Email: "jane@example.COM"}), repository.ErrAlreadyExists)

	u, err := s.Users().GetByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "jane@example.com", u.Email)
}
