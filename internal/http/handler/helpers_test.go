package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/http/middleware"
	"github.com/smallbiznis/valora-bff/internal/org"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.RegisterValidators(); err != nil {
		panic(err)
	}
}

func testCaller(userID string, admin bool) *org.Context {
	return &org.Context{
		Principal: domain.Principal{Subject: "ak-" + userID, Email: userID + "@example.com", Groups: []string{}},
		Profile:   domain.Profile{ID: userID, Email: userID + "@example.com"},
		IsAdmin:   admin,
	}
}

// newEngine returns an engine whose requests run as caller.
func newEngine(caller *org.Context) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller != nil {
			middleware.SetCaller(c, caller)
		}
		c.Next()
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	filter  domain.AuditFilter
}

func (m *memAuditRepo) Record(_ context.Context, entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAuditRepo) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = filter
	out := []domain.AuditEntry{}
	for _, e := range m.entries {
		if filter.Action == "" || e.Action == filter.Action {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAuditRepo) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type memConnRepo struct {
	mu     sync.Mutex
	tokens map[string]repository.SealedToken
	conns  map[string]domain.UserIntegration
}

func newMemConnRepo() *memConnRepo {
	return &memConnRepo{tokens: map[string]repository.SealedToken{}, conns: map[string]domain.UserIntegration{}}
}

func (m *memConnRepo) SaveConnection(_ context.Context, conn domain.UserIntegration, token repository.SealedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := conn.UserID + "/" + conn.IntegrationSlug
	m.tokens[key] = token
	m.conns[key] = conn
	return nil
}

func (m *memConnRepo) GetToken(_ context.Context, userID, slug string) (repository.SealedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[userID+"/"+slug]
	if !ok {
		return repository.SealedToken{}, domain.ErrNotFound
	}
	return tok, nil
}

func (m *memConnRepo) SaveToken(_ context.Context, userID, slug string, token repository.SealedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID+"/"+slug] = token
	return nil
}

func (m *memConnRepo) MarkSynced(_ context.Context, conn domain.UserIntegration, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn.LastSyncedAt = &syncedAt
	m.conns[conn.UserID+"/"+conn.IntegrationSlug] = conn
	return nil
}

func (m *memConnRepo) MarkStatus(_ context.Context, userID, slug, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + slug
	if conn, ok := m.conns[key]; ok {
		conn.Status = status
		m.conns[key] = conn
	}
	return nil
}

func (m *memConnRepo) List(_ context.Context, userID string) ([]domain.UserIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.UserIntegration{}
	for _, c := range m.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConnRepo) Delete(_ context.Context, userID, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + slug
	if _, ok := m.tokens[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tokens, key)
	delete(m.conns, key)
	return nil
}

type memConversationRepo struct {
	mu       sync.Mutex
	convs    map[string]domain.Conversation
	messages []domain.Message
}

func newMemConversationRepo(convs ...domain.Conversation) *memConversationRepo {
	m := &memConversationRepo{convs: map[string]domain.Conversation{}}
	for _, c := range convs {
		m.convs[c.ID] = c
	}
	return m
}

func (m *memConversationRepo) List(_ context.Context, userID string, includeArchived bool, _, _ int) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Conversation{}
	for _, c := range m.convs {
		if c.UserID == userID && (includeArchived || !c.Archived) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memConversationRepo) Create(_ context.Context, userID, title string, model *string) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := domain.Conversation{ID: "conv-new", UserID: userID, Title: title, Model: model}
	m.convs[conv.ID] = conv
	return conv, nil
}

func (m *memConversationRepo) Get(_ context.Context, userID, id string) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok || conv.UserID != userID {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return conv, nil
}

func (m *memConversationRepo) Update(ctx context.Context, userID, id string, update domain.ConversationUpdate) (domain.Conversation, error) {
	conv, err := m.Get(ctx, userID, id)
	if err != nil {
		return conv, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if update.Title != nil {
		conv.Title = *update.Title
	}
	if update.Archived != nil {
		conv.Archived = *update.Archived
	}
	m.convs[id] = conv
	return conv, nil
}

func (m *memConversationRepo) Delete(ctx context.Context, userID, id string) error {
	if _, err := m.Get(ctx, userID, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

func (m *memConversationRepo) Messages(_ context.Context, conversationID string, _ int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Message{}
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memConversationRepo) AppendMessage(_ context.Context, conversationID, role, content string, model *string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := domain.Message{ConversationID: conversationID, Role: role, Content: content, Model: model}
	m.messages = append(m.messages, msg)
	return msg, nil
}

type memUsageRepo struct {
	mu     sync.Mutex
	events []domain.UsageEvent
	filter domain.UsageFilter
}

func (m *memUsageRepo) Record(_ context.Context, event domain.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memUsageRepo) Summary(_ context.Context, filter domain.UsageFilter) ([]domain.UsageBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = filter
	return []domain.UsageBucket{{Bucket: "2025-01-01", Requests: 2, TotalTokens: 30}}, nil
}
