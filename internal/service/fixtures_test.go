package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/clock"
	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/repository/memory"
)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

var (
	adminP    = domain.Principal{ID: "admin-1", Roles: []domain.Role{domain.RoleAdmin}}
	agentP    = domain.Principal{ID: "agent-1", Roles: []domain.Role{domain.RoleAgent}}
	otherAgP  = domain.Principal{ID: "agent-2", Roles: []domain.Role{domain.RoleAgent}}
	customerP = domain.Principal{ID: "cust-1", Roles: []domain.Role{domain.RoleCustomer}}
	strangerP = domain.Principal{ID: "cust-2", Roles: []domain.Role{domain.RoleCustomer}}
)

// eventLog captures published events.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) Subscribe(events.EventType, events.EventHandler) {}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store       *memory.Store
	clock       *clock.FakeClock
	events      *eventLog
	files       *attachment.Store
	dir         string
	tickets     *TicketService
	attachments *AttachmentService
	ingestion   *IngestionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		clock:  clock.Fake(t0),
		events: &eventLog{},
		dir:    t.TempDir(),
	}
	backend, err := attachment.NewLocalBackend(f.dir)
	require.NoError(t, err)
	f.files = attachment.NewStore(backend, attachment.StoreOptions{Clock: f.clock})

	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:     f.store.Tickets(),
		CommentRepo:    f.store.Comments(),
		HistoryRepo:    f.store.History(),
		AttachmentRepo: f.store.Attachments(),
		Files:          f.files,
		Dispatcher:     f.events,
		Clock:          f.clock,
	})
	f.attachments = NewAttachmentService(AttachmentDependencies{
		TicketRepo:     f.store.Tickets(),
		AttachmentRepo: f.store.Attachments(),
		Validator:      attachment.NewValidator(0),
		Files:          f.files,
		Dispatcher:     f.events,
		Clock:          f.clock,
	})
	f.ingestion = NewIngestionService(IngestionDependencies{
		IngestionRepo: f.store.EmailIngestions(),
		UserRepo:      f.store.Users(),
		TicketRepo:    f.store.Tickets(),
		Dispatcher:    f.events,
		Clock:         f.clock,
	})
	return f
}

// seedTicket creates an open ticket owned by customerP, optionally assigned.
func (f *fixture) seedTicket(t *testing.T, assignee *string) *domain.Ticket {
	t.Helper()
	tk := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       "VPN drops",
		Description: "Disconnects every 10 minutes",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityMedium,
		CustomerID:  customerP.ID,
		AssigneeID:  assignee,
		CreatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.store.Tickets().Create(context.Background(), tk))
	return tk
}

func ptr[T any](v T) *T { return &v }
