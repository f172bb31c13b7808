package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/agentsession/internal/events"
	"example.com/agentsession/internal/observability"
)

// SinkHandler applies alert and attendance events to their Postgres sinks.
// Inserts are keyed so redelivered messages are absorbed rather than duplicated.
type SinkHandler struct {
	pool *pgxpool.Pool
}

// NewSinkHandler constructs a handler backed by the provided pool.
func NewSinkHandler(pool *pgxpool.Pool) *SinkHandler {
	return &SinkHandler{pool: pool}
}

// Handle routes the event to the matching sink table.
func (h *SinkHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeAlertRequested:
		return h.handleAlert(ctx, msg)
	case events.TypeAttendanceMarked:
		return h.handleAttendance(ctx, msg)
	default:
		// Other topics (session updates) are consumed by dashboards, not here.
		return nil
	}
}

func (h *SinkHandler) handleAlert(ctx context.Context, msg Message) error {
	var event events.AlertRequested
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode alert payload: %w", err)
	}

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("encode alert details: %w", err)
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO supervisor_alerts (alert_id, alert_type, agent_id, supervisor_id, title, description, details, requested_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (alert_id) DO NOTHING`,
		event.AlertID,
		event.AlertType,
		event.AgentID,
		event.SupervisorID,
		event.Title,
		event.Description,
		details,
		event.RequestedAt,
	)
	return err
}

func (h *SinkHandler) handleAttendance(ctx context.Context, msg Message) error {
	var event events.AttendanceMarked
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode attendance payload: %w", err)
	}

	if event.Working {
		_, err := h.pool.Exec(ctx,
			`INSERT INTO attendance (agent_id, business_date, is_working, first_login, status_label)
             VALUES ($1,$2,TRUE,$3,'Working')
             ON CONFLICT (agent_id, business_date) DO UPDATE SET
                 is_working=TRUE,
                 first_login=LEAST(attendance.first_login, EXCLUDED.first_login),
                 status_label='Working'`,
			event.AgentID, event.BusinessDate, event.At,
		)
		if err == nil {
			observability.RecordAttendancePersisted(event.At)
		}
		return err
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO attendance (agent_id, business_date, is_working, first_login, last_logout, status_label)
         VALUES ($1,$2,FALSE,$3,$3,$4)
         ON CONFLICT (agent_id, business_date) DO UPDATE SET
             is_working=FALSE,
             last_logout=GREATEST(COALESCE(attendance.last_logout, EXCLUDED.last_logout), EXCLUDED.last_logout),
             status_label=EXCLUDED.status_label`,
		event.AgentID, event.BusinessDate, event.At, event.ReasonLabel,
	)
	if err == nil {
		observability.RecordAttendancePersisted(event.At)
	}
	return err
}
