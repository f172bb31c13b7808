package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/agentsession/internal/auth"
	"example.com/agentsession/internal/domain"
	"example.com/agentsession/internal/persistence"
	"example.com/agentsession/internal/schedule"
)

func testDay(t *testing.T) schedule.Day {
	t.Helper()
	return schedule.Default(time.FixedZone("IST", 5*3600+1800))
}

func writeClaims(agentID string) *auth.Claims {
	return &auth.Claims{
		Subject: agentID,
		Role:    "agent",
		Scopes: map[string]struct{}{
			auth.ScopeSessionsWrite: {},
			auth.ScopeSessionsRead:  {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func withClaims(req *http.Request, claims *auth.Claims) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestSwitchActivitySuccess(t *testing.T) {
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	service := &mockService{
		session: &domain.Session{
			ID:              "sess-1",
			AgentID:         "agent-1",
			BusinessDate:    "2026-03-04",
			StartTime:       &now,
			IsActive:        true,
			CurrentActivity: domain.ActivityClientMeeting,
			UpdatedAt:       now,
		},
	}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	body := strings.NewReader(`{"activity":"client_meeting","details":"Acme follow-up"}`)
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/session/switch", body), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.command(handler.switchActivity)(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if service.switchCalls != 1 {
		t.Fatalf("expected 1 switch call got %d", service.switchCalls)
	}
	if service.lastActivity != domain.ActivityClientMeeting {
		t.Fatalf("unexpected activity %s", service.lastActivity)
	}

	var resp SessionView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.State != string(domain.SessionRunning) {
		t.Fatalf("expected running got %s", resp.State)
	}
	if resp.CurrentActivity != "client_meeting" {
		t.Fatalf("unexpected current activity %s", resp.CurrentActivity)
	}
}

func TestSwitchActivityRejectsUnknownType(t *testing.T) {
	service := &mockService{}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	body := strings.NewReader(`{"activity":"sleeping"}`)
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/session/switch", body), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.command(handler.switchActivity)(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if service.switchCalls != 0 {
		t.Fatalf("service should not be called on validation failure")
	}
}

func TestConfirmWithoutChallengeConflicts(t *testing.T) {
	service := &mockService{err: domain.ErrPreconditionFailed}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	body := strings.NewReader(`{"response":"accepted"}`)
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/session/confirm", body), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.command(handler.confirmActivity)(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestConfirmChangedRequiresActivity(t *testing.T) {
	service := &mockService{}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	body := strings.NewReader(`{"response":"changed"}`)
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/session/confirm", body), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.command(handler.confirmActivity)(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestCommandRequiresWriteScope(t *testing.T) {
	service := &mockService{}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	claims := writeClaims("agent-1")
	delete(claims.Scopes, auth.ScopeSessionsWrite)
	req := withClaims(httptest.NewRequest(http.MethodPost, "/v1/session/start", nil), claims)

	rr := httptest.NewRecorder()
	handler.command(handler.startSession)(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	service := &mockService{err: domain.ErrSessionNotFound}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/session", nil), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.getSession(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestGetSessionForbidsCrossAgentReads(t *testing.T) {
	service := &mockService{}
	handler := NewHandler(service, &mockLogs{}, testDay(t))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/session?agent_id=agent-2", nil), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.getSession(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestSessionLogPagination(t *testing.T) {
	started := time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC)
	ended := started.Add(45 * time.Minute)
	logs := &mockLogs{
		entries: []domain.LogEntry{
			{EntryID: 2, AgentID: "agent-1", BusinessDate: "2026-03-04", Activity: domain.ActivityBreak, StartedAt: ended},
			{EntryID: 1, AgentID: "agent-1", BusinessDate: "2026-03-04", Activity: domain.ActivityCalling, StartedAt: started, EndedAt: &ended},
		},
		next: &persistence.LogCursor{StartedAt: started, EntryID: 1},
	}
	handler := NewHandler(&mockService{}, logs, testDay(t))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/session/log?date=2026-03-04&limit=2", nil), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.sessionLog(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp SessionLogResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items got %d", len(resp.Items))
	}
	if resp.Items[0].Activity != "break" || resp.Items[0].EndedAt != nil {
		t.Fatalf("unexpected first item %+v", resp.Items[0])
	}
	if resp.NextCursor == "" {
		t.Fatalf("expected next cursor")
	}
	if logs.lastLimit != 2 {
		t.Fatalf("expected limit 2 got %d", logs.lastLimit)
	}
}

func TestSessionLogRejectsBadCursor(t *testing.T) {
	handler := NewHandler(&mockService{}, &mockLogs{}, testDay(t))

	req := withClaims(httptest.NewRequest(http.MethodGet, "/v1/session/log?cursor=%21%21", nil), writeClaims("agent-1"))

	rr := httptest.NewRecorder()
	handler.sessionLog(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

type mockService struct {
	session      *domain.Session
	err          error
	switchCalls  int
	lastActivity domain.ActivityType
}

func (m *mockService) Start(ctx context.Context, agentID string) (*domain.Session, error) {
	return m.result(agentID)
}

func (m *mockService) Switch(ctx context.Context, agentID string, activity domain.ActivityType, details string) (*domain.Session, error) {
	m.switchCalls++
	m.lastActivity = activity
	return m.result(agentID)
}

func (m *mockService) Confirm(ctx context.Context, agentID string, response domain.ResponseType, newActivity domain.ActivityType, details string) (*domain.Session, error) {
	return m.result(agentID)
}

func (m *mockService) End(ctx context.Context, agentID string) (*domain.Session, error) {
	return m.result(agentID)
}

func (m *mockService) Session(ctx context.Context, agentID string) (*domain.Session, error) {
	return m.result(agentID)
}

func (m *mockService) result(agentID string) (*domain.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.session != nil {
		return m.session, nil
	}
	return &domain.Session{AgentID: agentID, BusinessDate: "2026-03-04"}, nil
}

type mockLogs struct {
	entries   []domain.LogEntry
	next      *persistence.LogCursor
	lastLimit int
}

func (m *mockLogs) ListLogEntries(ctx context.Context, agentID, businessDate string, cursor *persistence.LogCursor, limit int) ([]domain.LogEntry, *persistence.LogCursor, error) {
	m.lastLimit = limit
	return m.entries, m.next, nil
}
