// Package memory provides map-backed repositories with the same uniqueness,
// versioning and cascade rules as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/repository"
)

// Store holds every table behind a single lock.
type Store struct {
	mu          sync.RWMutex
	tickets     map[string]domain.Ticket
	comments    map[string]domain.TicketComment
	history     map[string]domain.TicketHistory
	attachments map[string]domain.TicketAttachment
	ingestions  map[string]domain.EmailIngestion
	users       map[string]domain.User

	issuedTokens map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickets:     map[string]domain.Ticket{},
		comments:    map[string]domain.TicketComment{},
		history:     map[string]domain.TicketHistory{},
		attachments: map[string]domain.TicketAttachment{},
		ingestions:  map[string]domain.EmailIngestion{},
		users:       map[string]domain.User{},

		issuedTokens: map[string]struct{}{},
	}
}

func (s *Store) Tickets() repository.TicketRepository                 { return ticketRepo{s} }
func (s *Store) Comments() repository.TicketCommentRepository         { return commentRepo{s} }
func (s *Store) History() repository.TicketHistoryRepository          { return historyRepo{s} }
func (s *Store) Attachments() repository.AttachmentRepository         { return attachmentRepo{s} }
func (s *Store) EmailIngestions() repository.EmailIngestionRepository { return ingestionRepo{s} }
func (s *Store) Users() repository.UserRepository                     { return userRepo{s} }

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticket.ID]; ok {
		return repository.ErrAlreadyExists
	}
	ticket.Version = 1
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	next := cloneTicket(*ticket)
	next.CreatedAt = current.CreatedAt
	next.CustomerID = current.CustomerID
	next.Version = current.Version + 1
	r.s.tickets[ticket.ID] = next
	ticket.Version = next.Version
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r ticketRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tickets, id)
	for key, c := range r.s.comments {
		if c.TicketID == id {
			delete(r.s.comments, key)
		}
	}
	for key, h := range r.s.history {
		if h.TicketID == id {
			delete(r.s.history, key)
		}
	}
	for key, a := range r.s.attachments {
		if a.TicketID == id {
			delete(r.s.attachments, key)
		}
	}
	for key, e := range r.s.ingestions {
		if e.CreatedTicketID != nil && *e.CreatedTicketID == id {
			e.CreatedTicketID = nil
			r.s.ingestions[key] = e
		}
	}
	return nil
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var search string
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if filter.CustomerID != nil && t.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.AssigneeID != nil && !t.IsAssignedTo(*filter.AssigneeID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

type commentRepo struct{ s *Store }

func (r commentRepo) Create(_ context.Context, comment *domain.TicketComment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[comment.TicketID]; !ok {
		return repository.ErrNotFound
	}
	r.s.comments[comment.ID] = *comment
	return nil
}

func (r commentRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.TicketComment
	for _, c := range r.s.comments {
		if c.TicketID != ticketID || (c.IsInternal && !includeInternal) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.history[entry.ID] = *entry
	return nil
}

func (r historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.TicketHistory
	for _, h := range r.s.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(_ context.Context, att *domain.TicketAttachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[att.TicketID]; !ok {
		return repository.ErrNotFound
	}
	if !r.s.issueToken(att.DownloadToken) {
		return repository.ErrAlreadyExists
	}
	r.s.attachments[att.ID] = cloneAttachment(*att)
	return nil
}

func (r attachmentRepo) GetByID(_ context.Context, id string) (*domain.TicketAttachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	att, ok := r.s.attachments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneAttachment(att)
	return &out, nil
}

func (r attachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketAttachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.TicketAttachment
	for _, a := range r.s.attachments {
		if a.TicketID == ticketID {
			out = append(out, cloneAttachment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (r attachmentRepo) UpdateToken(_ context.Context, id, token string, expiresAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	att, ok := r.s.attachments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !r.s.issueToken(token) {
		return repository.ErrAlreadyExists
	}
	att.DownloadToken = token
	att.TokenExpiresAt = copyTime(expiresAt)
	r.s.attachments[id] = att
	return nil
}

func (r attachmentRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.attachments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.attachments, id)
	return nil
}

// issueToken records token and reports false if it was issued before.
func (s *Store) issueToken(token string) bool {
	if _, ok := s.issuedTokens[token]; ok {
		return false
	}
	s.issuedTokens[token] = struct{}{}
	return true
}

type ingestionRepo struct{ s *Store }

func (r ingestionRepo) Create(_ context.Context, e *domain.EmailIngestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.ingestions {
		if existing.MessageID == e.MessageID {
			return repository.ErrAlreadyExists
		}
	}
	r.s.ingestions[e.ID] = cloneIngestion(*e)
	return nil
}

func (r ingestionRepo) Update(_ context.Context, e *domain.EmailIngestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.ingestions[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.ProcessedBody = e.ProcessedBody
	current.ProcessedAt = copyTime(e.ProcessedAt)
	current.IsProcessed = e.IsProcessed
	current.ProcessingError = copyString(e.ProcessingError)
	current.CreatedTicketID = copyString(e.CreatedTicketID)
	r.s.ingestions[e.ID] = current
	return nil
}

func (r ingestionRepo) GetByID(_ context.Context, id string) (*domain.EmailIngestion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.ingestions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneIngestion(e)
	return &out, nil
}

func (r ingestionRepo) GetByMessageID(_ context.Context, messageID string) (*domain.EmailIngestion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.ingestions {
		if e.MessageID == messageID {
			out := cloneIngestion(e)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r ingestionRepo) List(_ context.Context, filter repository.EmailIngestionFilter) ([]domain.EmailIngestion, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EmailIngestion
	for _, e := range r.s.ingestions {
		if filter.Processed != nil && e.IsProcessed != *filter.Processed {
			continue
		}
		out = append(out, cloneIngestion(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return page(out, filter.Limit, filter.Offset), len(out), nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range r.s.users {
		if existing.Email == email {
			return repository.ErrAlreadyExists
		}
	}
	stored := *user
	stored.Email = email
	stored.Roles = append([]domain.Role(nil), user.Roles...)
	r.s.users[user.ID] = stored
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range r.s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.Category = copyString(t.Category)
	t.AssigneeID = copyString(t.AssigneeID)
	t.UpdatedAt = copyTime(t.UpdatedAt)
	return t
}

func cloneAttachment(a domain.TicketAttachment) domain.TicketAttachment {
	a.TokenExpiresAt = copyTime(a.TokenExpiresAt)
	return a
}

func cloneIngestion(e domain.EmailIngestion) domain.EmailIngestion {
	e.FromName = copyString(e.FromName)
	e.ProcessedAt = copyTime(e.ProcessedAt)
	e.ProcessingError = copyString(e.ProcessingError)
	e.CreatedTicketID = copyString(e.CreatedTicketID)
	return e
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
