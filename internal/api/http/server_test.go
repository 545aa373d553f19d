package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpline-labs/support-desk/internal/api/http/handlers"
	"github.com/helpline-labs/support-desk/internal/attachment"
	"github.com/helpline-labs/support-desk/internal/auth"
	"github.com/helpline-labs/support-desk/internal/domain"
	"github.com/helpline-labs/support-desk/internal/events"
	"github.com/helpline-labs/support-desk/internal/observability"
	"github.com/helpline-labs/support-desk/internal/repository/memory"
	"github.com/helpline-labs/support-desk/internal/service"
)

var pngData = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.New()
	dispatcher := events.NewInMemoryDispatcher(logger, metrics)

	backend, err := attachment.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	files := attachment.NewStore(backend, attachment.StoreOptions{})

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     store.Tickets(),
		CommentRepo:    store.Comments(),
		HistoryRepo:    store.History(),
		AttachmentRepo: store.Attachments(),
		Files:          files,
		Dispatcher:     dispatcher,
	})
	attachments := service.NewAttachmentService(service.AttachmentDependencies{
		TicketRepo:     store.Tickets(),
		AttachmentRepo: store.Attachments(),
		Files:          files,
		Dispatcher:     dispatcher,
	})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{
		Tickets:  tickets,
		UserRepo: store.Users(),
	})
	ingestion := service.NewIngestionService(service.IngestionDependencies{
		IngestionRepo: store.EmailIngestions(),
		UserRepo:      store.Users(),
		TicketRepo:    store.Tickets(),
		Dispatcher:    dispatcher,
	})

	tokens := auth.NewTokenManager("test-secret", "support-desk", 10)
	app := NewServer(ServerOptions{AppName: "test", BodyLimit: 2 << 20, RequestTimeout: 5 * time.Second}, logger, metrics, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", nil),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, assignments),
		Attachments:    handlers.NewAttachmentsHandler(attachments, logger),
		Ingestion:      handlers.NewIngestionHandler(ingestion),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, logger),
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

func (s *testServer) bearer(t *testing.T, subject string, roles ...domain.Role) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(subject, roles)
	require.NoError(t, err)
	return "Bearer " + token
}

type apiResponse struct {
	status int
	header http.Header
	raw    []byte
	body   map[string]any
}

func (s *testServer) do(t *testing.T, method, path, authz string, payload any) apiResponse {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(t, req, authz)
}

func (s *testServer) send(t *testing.T, req *http.Request, authz string) apiResponse {
	t.Helper()
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := apiResponse{status: resp.StatusCode, header: resp.Header, raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func (r apiResponse) data() map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func (r apiResponse) errorCode() string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (r apiResponse) errorDetails() map[string]any {
	e, _ := r.body["error"].(map[string]any)
	d, _ := e["details"].(map[string]any)
	return d
}

func TestHealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	live := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, live.status)
	assert.Equal(t, "alive", live.body["status"])

	ready := s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, ready.status)

	missing := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, missing.status)
	assert.Equal(t, "NOT_FOUND", missing.errorCode())
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "UNAUTHORIZED", resp.errorCode())

	resp = s.do(t, http.MethodGet, "/api/tickets", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := s.bearer(t, "cust-1", domain.RoleCustomer)
	agent := s.bearer(t, "agent-1", domain.RoleAgent)
	admin := s.bearer(t, "admin-1", domain.RoleAdmin)

	created := s.do(t, http.MethodPost, "/api/tickets", customer, map[string]any{
		"title":       "Printer offline",
		"description": "Third floor printer",
		"priority":    "CRITICAL",
	})
	require.Equal(t, http.StatusCreated, created.status, string(created.raw))
	id := created.data()["id"].(string)
	assert.Equal(t, "OPEN", created.data()["status"])
	assert.Equal(t, "MEDIUM", created.data()["priority"])
	assert.Equal(t, "cust-1", created.data()["customer_id"])

	denied := s.do(t, http.MethodPut, "/api/tickets/"+id+"/status", agent, map[string]any{"status": "IN_PROGRESS"})
	assert.Equal(t, http.StatusForbidden, denied.status)
	assert.Equal(t, "AUTHORIZATION_DENIED", denied.errorCode())
	assert.Equal(t, map[string]any{"policy": "CanTransitionTicket"}, denied.errorDetails())

	assigned := s.do(t, http.MethodPost, "/api/tickets/"+id+"/assign-self", agent, nil)
	require.Equal(t, http.StatusOK, assigned.status, string(assigned.raw))

	moved := s.do(t, http.MethodPut, "/api/tickets/"+id+"/status", agent, map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, moved.status, string(moved.raw))
	assert.Equal(t, "IN_PROGRESS", moved.data()["status"])

	invalid := s.do(t, http.MethodPut, "/api/tickets/"+id+"/status", agent, map[string]any{"status": "REOPENED"})
	assert.Equal(t, http.StatusBadRequest, invalid.status)
	assert.Equal(t, "VALIDATION_FAILED", invalid.errorCode())

	note := s.do(t, http.MethodPost, "/api/tickets/"+id+"/comments", agent, map[string]any{"body": "checking toner", "is_internal": true})
	require.Equal(t, http.StatusCreated, note.status, string(note.raw))
	reply := s.do(t, http.MethodPost, "/api/tickets/"+id+"/comments", customer, map[string]any{"body": "thanks"})
	require.Equal(t, http.StatusCreated, reply.status, string(reply.raw))

	comments := s.do(t, http.MethodGet, "/api/tickets/"+id+"/comments", customer, nil)
	require.Equal(t, http.StatusOK, comments.status)
	assert.Len(t, comments.body["data"], 1)

	history := s.do(t, http.MethodGet, "/api/tickets/"+id+"/history", admin, nil)
	require.Equal(t, http.StatusOK, history.status)
	assert.NotEmpty(t, history.body["data"])

	other := s.do(t, http.MethodGet, "/api/tickets/"+id, s.bearer(t, "cust-2", domain.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, other.status)

	notAdmin := s.do(t, http.MethodDelete, "/api/tickets/"+id, agent, nil)
	assert.Equal(t, http.StatusForbidden, notAdmin.status)
	deleted := s.do(t, http.MethodDelete, "/api/tickets/"+id, admin, nil)
	assert.Equal(t, http.StatusNoContent, deleted.status)
	gone := s.do(t, http.MethodGet, "/api/tickets/"+id, admin, nil)
	assert.Equal(t, http.StatusNotFound, gone.status)
}

func multipartUpload(t *testing.T, path, fileName, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestAttachmentsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := s.bearer(t, "cust-1", domain.RoleCustomer)
	agent := s.bearer(t, "agent-1", domain.RoleAgent)

	created := s.do(t, http.MethodPost, "/api/tickets", customer, map[string]any{"title": "Screen", "description": "Cracked"})
	require.Equal(t, http.StatusCreated, created.status)
	ticketID := created.data()["id"].(string)

	up := s.send(t, multipartUpload(t, "/api/attachments/upload/"+ticketID, "photo.png", "image/png", pngData), customer)
	require.Equal(t, http.StatusCreated, up.status, string(up.raw))
	att := up.data()
	assert.Equal(t, "photo.png", att["file_name"])
	assert.NotContains(t, string(up.raw), "stored_file_name")
	url := att["download_url"].(string)
	assert.True(t, strings.HasPrefix(url, "/api/attachments/download/"+att["id"].(string)+"?token="))

	dl := s.do(t, http.MethodGet, url, customer, nil)
	require.Equal(t, http.StatusOK, dl.status)
	assert.Equal(t, pngData, dl.raw)
	assert.Equal(t, "image/png", dl.header.Get("Content-Type"))
	assert.Contains(t, dl.header.Get("Content-Disposition"), "photo.png")

	bad := s.do(t, http.MethodGet, "/api/attachments/download/"+att["id"].(string)+"?token=wrong", customer, nil)
	assert.Equal(t, http.StatusForbidden, bad.status)
	assert.Equal(t, "AUTHORIZATION_DENIED", bad.errorCode())

	spoofed := s.send(t, multipartUpload(t, "/api/attachments/upload/"+ticketID, "doc.pdf", "application/pdf", pngData), customer)
	assert.Equal(t, http.StatusBadRequest, spoofed.status)
	assert.Equal(t, "VALIDATION_FAILED", spoofed.errorCode())

	list := s.do(t, http.MethodGet, "/api/attachments/ticket/"+ticketID, customer, nil)
	require.Equal(t, http.StatusOK, list.status)
	assert.Len(t, list.body["data"], 1)

	customerRotate := s.do(t, http.MethodPost, "/api/attachments/"+att["id"].(string)+"/rotate-token", customer, nil)
	assert.Equal(t, http.StatusForbidden, customerRotate.status)

	rotated := s.do(t, http.MethodPost, "/api/attachments/"+att["id"].(string)+"/rotate-token", agent, nil)
	require.Equal(t, http.StatusOK, rotated.status, string(rotated.raw))
	assert.NotEqual(t, url, rotated.data()["download_url"])
	stale := s.do(t, http.MethodGet, url, customer, nil)
	assert.Equal(t, http.StatusForbidden, stale.status)

	removed := s.do(t, http.MethodDelete, "/api/attachments/"+att["id"].(string), agent, nil)
	assert.Equal(t, http.StatusNoContent, removed.status)
}

func TestEmailIngestionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	agent := s.bearer(t, "agent-1", domain.RoleAgent)
	customer := s.bearer(t, "cust-1", domain.RoleCustomer)
	payload := map[string]any{
		"message_id": "<abc@mail.example>",
		"subject":    "Refund",
		"body":       "Card 4111-1111-1111-1111, write to a@b.com or c@d.com",
		"from_email": "a@b.com",
		"from_name":  "Ann Bee",
	}

	forbidden := s.do(t, http.MethodPost, "/api/email-ingestion/process", customer, payload)
	assert.Equal(t, http.StatusForbidden, forbidden.status)

	first := s.do(t, http.MethodPost, "/api/email-ingestion/process", agent, payload)
	require.Equal(t, http.StatusCreated, first.status, string(first.raw))
	assert.Equal(t, true, first.data()["success"])
	body := first.data()["processed_body"].(string)
	assert.Contains(t, body, "a@b.com")
	assert.NotContains(t, body, "4111")
	assert.NotContains(t, body, "c@d.com")

	dup := s.do(t, http.MethodPost, "/api/email-ingestion/process", agent, payload)
	assert.Equal(t, http.StatusConflict, dup.status)
	assert.Equal(t, "ALREADY_PROCESSED", dup.errorCode())

	list := s.do(t, http.MethodGet, "/api/email-ingestion?page=1&page_size=10", agent, nil)
	require.Equal(t, http.StatusOK, list.status)
	meta := list.body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
	assert.Equal(t, float64(1), meta["total_pages"])

	id := first.data()["ingestion_id"].(string)
	detail := s.do(t, http.MethodGet, "/api/email-ingestion/"+id, agent, nil)
	require.Equal(t, http.StatusOK, detail.status)
	assert.NotContains(t, string(detail.raw), "4111")

	retry := s.do(t, http.MethodPost, "/api/email-ingestion/"+id+"/retry", agent, nil)
	assert.Equal(t, http.StatusConflict, retry.status)
	assert.Equal(t, "ALREADY_PROCESSED", retry.errorCode())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	admin := s.bearer(t, "admin-1", domain.RoleAdmin)

	s.do(t, http.MethodGet, "/api/tickets", "", nil)

	denied := s.do(t, http.MethodGet, "/metrics", s.bearer(t, "agent-1", domain.RoleAgent), nil)
	assert.Equal(t, http.StatusForbidden, denied.status)

	resp := s.do(t, http.MethodGet, "/metrics", admin, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.NotEmpty(t, resp.body["requests"])
	assert.NotEmpty(t, resp.body["errors"])
}
