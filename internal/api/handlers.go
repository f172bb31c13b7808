// Package api exposes the HTTP surface agents use to drive their session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/agentsession/internal/auth"
	"example.com/agentsession/internal/domain"
	"example.com/agentsession/internal/persistence"
	"example.com/agentsession/internal/schedule"
)

// SessionService is the command surface of the escalation engine.
type SessionService interface {
	Start(ctx context.Context, agentID string) (*domain.Session, error)
	Switch(ctx context.Context, agentID string, activity domain.ActivityType, details string) (*domain.Session, error)
	Confirm(ctx context.Context, agentID string, response domain.ResponseType, newActivity domain.ActivityType, details string) (*domain.Session, error)
	End(ctx context.Context, agentID string) (*domain.Session, error)
	Session(ctx context.Context, agentID string) (*domain.Session, error)
}

// LogStore reads the day's activity ledger.
type LogStore interface {
	ListLogEntries(ctx context.Context, agentID, businessDate string, cursor *persistence.LogCursor, limit int) ([]domain.LogEntry, *persistence.LogCursor, error)
}

// Handler coordinates HTTP requests with the session engine.
type Handler struct {
	service SessionService
	logs    LogStore
	day     schedule.Day
	clock   func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(service SessionService, logs LogStore, day schedule.Day) *Handler {
	return &Handler{service: service, logs: logs, day: day, clock: time.Now}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/session/start", h.command(h.startSession))
	mux.HandleFunc("/v1/session/switch", h.command(h.switchActivity))
	mux.HandleFunc("/v1/session/confirm", h.command(h.confirmActivity))
	mux.HandleFunc("/v1/session/end", h.command(h.endSession))
	mux.HandleFunc("/v1/session", h.getSession)
	mux.HandleFunc("/v1/session/log", h.sessionLog)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// command wraps the shared POST + sessions:write preamble around a handler.
func (h *Handler) command(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if !claims.HasScope(auth.ScopeSessionsWrite) {
			writeError(w, http.StatusForbidden, "forbidden", "scope sessions:write required")
			return
		}
		fn(w, r, claims.Subject)
	}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, agentID string) {
	s, err := h.service.Start(r.Context(), agentID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(s))
}

func (h *Handler) switchActivity(w http.ResponseWriter, r *http.Request, agentID string) {
	var req SwitchActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	s, err := h.service.Switch(r.Context(), agentID, domain.ActivityType(req.Activity), req.Details)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(s))
}

func (h *Handler) confirmActivity(w http.ResponseWriter, r *http.Request, agentID string) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	s, err := h.service.Confirm(r.Context(), agentID, domain.ResponseType(req.Response), domain.ActivityType(req.NewActivity), req.Details)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(s))
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request, agentID string) {
	s, err := h.service.End(r.Context(), agentID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(s))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSessionsRead) && !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:read required")
		return
	}

	agentID := claims.Subject
	// Supervisors may inspect another agent's session.
	if other := r.URL.Query().Get("agent_id"); other != "" && other != agentID {
		if claims.Role != "supervisor" && claims.Role != "admin" {
			writeError(w, http.StatusForbidden, "forbidden", "cannot read another agent's session")
			return
		}
		agentID = other
	}

	s, err := h.service.Session(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no session for today")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(s))
}

func (h *Handler) sessionLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSessionsRead) && !claims.HasScope(auth.ScopeSessionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sessions:read required")
		return
	}

	agentID := claims.Subject
	if other := r.URL.Query().Get("agent_id"); other != "" && other != agentID {
		if claims.Role != "supervisor" && claims.Role != "admin" {
			writeError(w, http.StatusForbidden, "forbidden", "cannot read another agent's log")
			return
		}
		agentID = other
	}

	businessDate := r.URL.Query().Get("date")
	if businessDate == "" {
		businessDate = h.day.BusinessDate(h.clock())
	} else if _, err := time.Parse("2006-01-02", businessDate); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid date, expected YYYY-MM-DD")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeLogCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.logs.ListLogEntries(r.Context(), agentID, businessDate, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]LogEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toLogEntryView(entry))
	}
	writeJSON(w, http.StatusOK, SessionLogResponse{
		AgentID:      agentID,
		BusinessDate: businessDate,
		Items:        items,
		NextCursor:   persistence.EncodeLogCursor(next),
	})
}

// SwitchActivityRequest is the payload for POST /v1/session/switch.
type SwitchActivityRequest struct {
	Activity string `json:"activity"`
	Details  string `json:"details"`
}

// Validate ensures request correctness.
func (r SwitchActivityRequest) Validate() error {
	if strings.TrimSpace(r.Activity) == "" {
		return errors.New("activity is required")
	}
	if !domain.ActivityType(r.Activity).Valid() {
		return errors.New("unknown activity type")
	}
	return nil
}

// ConfirmRequest is the payload for POST /v1/session/confirm.
type ConfirmRequest struct {
	Response    string `json:"response"`
	NewActivity string `json:"new_activity"`
	Details     string `json:"details"`
}

// Validate ensures request correctness.
func (r ConfirmRequest) Validate() error {
	switch domain.ResponseType(r.Response) {
	case domain.ResponseAccepted:
		return nil
	case domain.ResponseChanged:
		if strings.TrimSpace(r.NewActivity) == "" {
			return errors.New("new_activity is required when response is changed")
		}
		if !domain.ActivityType(r.NewActivity).Valid() {
			return errors.New("unknown activity type")
		}
		return nil
	default:
		return errors.New("response must be accepted or changed")
	}
}

// SessionView exposes the session row to clients.
type SessionView struct {
	SessionID                string     `json:"session_id,omitempty"`
	AgentID                  string     `json:"agent_id"`
	BusinessDate             string     `json:"business_date"`
	State                    string     `json:"state"`
	StartTime                *time.Time `json:"start_time,omitempty"`
	EndTime                  *time.Time `json:"end_time,omitempty"`
	EndReason                string     `json:"end_reason,omitempty"`
	CurrentActivity          string     `json:"current_activity,omitempty"`
	CurrentActivityStartedAt *time.Time `json:"current_activity_started_at,omitempty"`
	LastConfirmationAt       *time.Time `json:"last_confirmation_at,omitempty"`
	PendingPromptAt          *time.Time `json:"pending_prompt_at,omitempty"`
	ConfirmationRequired     bool       `json:"confirmation_required"`
	MissedConfirmations      int        `json:"missed_confirmations"`
	TotalOthersMinutes       int        `json:"total_others_minutes"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// LogEntryView is one activity segment in the day's ledger.
type LogEntryView struct {
	EntryID   int64      `json:"entry_id"`
	Activity  string     `json:"activity"`
	Label     string     `json:"label"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Details   string     `json:"details,omitempty"`
	AutoFlag  string     `json:"auto_flag,omitempty"`
}

// SessionLogResponse packages ledger results.
type SessionLogResponse struct {
	AgentID      string         `json:"agent_id"`
	BusinessDate string         `json:"business_date"`
	Items        []LogEntryView `json:"items"`
	NextCursor   string         `json:"next_cursor,omitempty"`
}

// writeCommandError maps engine errors onto HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPreconditionFailed):
		writeError(w, http.StatusConflict, "precondition_failed", err.Error())
	case errors.Is(err, domain.ErrUnknownActivity):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no session for today")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toSessionView(s *domain.Session) SessionView {
	return SessionView{
		SessionID:                s.ID,
		AgentID:                  s.AgentID,
		BusinessDate:             s.BusinessDate,
		State:                    string(s.State()),
		StartTime:                s.StartTime,
		EndTime:                  s.EndTime,
		EndReason:                string(s.EndReason),
		CurrentActivity:          string(s.CurrentActivity),
		CurrentActivityStartedAt: s.CurrentActivityStartedAt,
		LastConfirmationAt:       s.LastConfirmationAt,
		PendingPromptAt:          s.PendingPromptAt,
		ConfirmationRequired:     s.ChallengeOutstanding(),
		MissedConfirmations:      s.MissedConfirmations,
		TotalOthersMinutes:       s.TotalOthersMinutes,
		UpdatedAt:                s.UpdatedAt,
	}
}

func toLogEntryView(entry domain.LogEntry) LogEntryView {
	return LogEntryView{
		EntryID:   entry.EntryID,
		Activity:  string(entry.Activity),
		Label:     entry.Activity.Label(),
		StartedAt: entry.StartedAt,
		EndedAt:   entry.EndedAt,
		Details:   entry.Details,
		AutoFlag:  entry.AutoFlag,
	}
}
