package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/agentsession/internal/domain"
	"example.com/agentsession/internal/engine"
	"example.com/agentsession/internal/events"
	"example.com/agentsession/internal/observability"
	"example.com/agentsession/internal/persistence"
)

// Repository provides Postgres-backed persistence for sessions, the activity
// ledger, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `session_id, agent_id, business_date, start_time, end_time, is_active, end_reason,
        current_activity, current_activity_started_at, last_confirmation_at, pending_prompt_at,
        missed_confirmations, total_others_minutes, created_at, updated_at`

// GetSession returns the session row for (agent, day), or nil when absent.
func (r *Repository) GetSession(ctx context.Context, agentID, businessDate string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM activity_sessions WHERE agent_id=$1 AND business_date=$2`

	row := r.pool.QueryRow(ctx, query, agentID, businessDate)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveSessions returns every active session row. There is no date
// filter: a session left active past midnight must keep showing up until a
// sweep closes it.
func (r *Repository) ListActiveSessions(ctx context.Context) ([]engine.SessionRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT agent_id, business_date FROM activity_sessions WHERE is_active ORDER BY business_date, agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []engine.SessionRef
	for rows.Next() {
		var (
			ref  engine.SessionRef
			date time.Time
		)
		if err := rows.Scan(&ref.AgentID, &date); err != nil {
			return nil, err
		}
		ref.BusinessDate = date.Format("2006-01-02")
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// CommitOutcome persists one transition atomically: session upsert, ledger
// segments, confirmation rows, de-dup marks, and outbox events.
func (r *Repository) CommitOutcome(ctx context.Context, c engine.Commit) error {
	out := c.Outcome
	s := out.Session

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if out.Mutates() {
		if err = upsertSession(ctx, tx, s); err != nil {
			return err
		}
	}

	for _, seg := range out.Closes {
		if _, err = tx.Exec(ctx,
			`UPDATE activity_log SET ended_at=$1, auto_flag=COALESCE(NULLIF($2,''), auto_flag)
              WHERE agent_id=$3 AND business_date=$4 AND activity_type=$5 AND ended_at IS NULL`,
			seg.EndedAt, seg.AutoFlag, s.AgentID, s.BusinessDate, seg.Activity,
		); err != nil {
			return err
		}
	}

	for _, open := range out.Opens {
		if _, err = tx.Exec(ctx,
			`INSERT INTO activity_log (agent_id, business_date, activity_type, started_at, ended_at, details, auto_flag)
             VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			s.AgentID, s.BusinessDate, open.Activity, open.StartedAt, open.EndedAt, open.Details, open.AutoFlag,
		); err != nil {
			return err
		}
	}

	for _, conf := range out.Confirmations {
		if _, err = tx.Exec(ctx,
			`INSERT INTO activity_confirmations (session_id, agent_id, prompted_at, responded_at, response_type, activity_before, activity_after, auto_switch_reason)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			s.ID, s.AgentID, conf.PromptedAt, conf.RespondedAt, conf.ResponseType,
			nullIfEmpty(string(conf.ActivityBefore)), nullIfEmpty(string(conf.ActivityAfter)), nullIfEmpty(conf.AutoSwitchReason),
		); err != nil {
			return err
		}
	}

	for _, alert := range c.Alerts {
		if alert.DedupKey != "" {
			tag, markErr := tx.Exec(ctx,
				`INSERT INTO alert_marks (agent_id, business_date, dedup_key) VALUES ($1,$2,$3)
                 ON CONFLICT DO NOTHING`,
				s.AgentID, s.BusinessDate, alert.DedupKey,
			)
			if markErr != nil {
				err = markErr
				return err
			}
			if tag.RowsAffected() == 0 {
				// Already fired for this (agent, day, key); re-evaluation
				// must not resend.
				continue
			}
		}
		if err = insertOutbox(ctx, tx, s, events.TypeAlertRequested, events.AlertRequested{
			AlertID:      alert.AlertID,
			AlertType:    alert.AlertType,
			AgentID:      s.AgentID,
			SupervisorID: alert.SupervisorID,
			Title:        alert.Title,
			Description:  alert.Description,
			Details:      alert.Details,
			RequestedAt:  alert.RequestedAt,
		}); err != nil {
			return err
		}
	}

	if out.Attendance != nil {
		if err = insertOutbox(ctx, tx, s, events.TypeAttendanceMarked, events.AttendanceMarked{
			AgentID:      s.AgentID,
			BusinessDate: s.BusinessDate,
			Working:      out.Attendance.Working,
			At:           out.Attendance.At,
			ReasonLabel:  out.Attendance.ReasonLabel,
		}); err != nil {
			return err
		}
	}

	if out.Mutates() {
		if err = insertOutbox(ctx, tx, s, events.TypeSessionUpdated, events.SessionUpdated{
			SessionID:           s.ID,
			AgentID:             s.AgentID,
			BusinessDate:        s.BusinessDate,
			State:               string(s.State()),
			CurrentActivity:     string(s.CurrentActivity),
			MissedConfirmations: s.MissedConfirmations,
			Transition:          string(out.Kind),
			UpdatedAt:           s.UpdatedAt,
		}); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	if out.Mutates() {
		observability.RecordSessionPersisted(s.UpdatedAt)
	}
	return nil
}

func upsertSession(ctx context.Context, tx pgx.Tx, s domain.Session) error {
	const stmt = `INSERT INTO activity_sessions (session_id, agent_id, business_date, start_time, end_time, is_active, end_reason,
            current_activity, current_activity_started_at, last_confirmation_at, pending_prompt_at,
            missed_confirmations, total_others_minutes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (agent_id, business_date) DO UPDATE SET
            start_time=EXCLUDED.start_time,
            end_time=EXCLUDED.end_time,
            is_active=EXCLUDED.is_active,
            end_reason=EXCLUDED.end_reason,
            current_activity=EXCLUDED.current_activity,
            current_activity_started_at=EXCLUDED.current_activity_started_at,
            last_confirmation_at=EXCLUDED.last_confirmation_at,
            pending_prompt_at=EXCLUDED.pending_prompt_at,
            missed_confirmations=EXCLUDED.missed_confirmations,
            total_others_minutes=EXCLUDED.total_others_minutes,
            updated_at=EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, stmt,
		s.ID,
		s.AgentID,
		s.BusinessDate,
		s.StartTime,
		s.EndTime,
		s.IsActive,
		nullIfEmpty(string(s.EndReason)),
		nullIfEmpty(string(s.CurrentActivity)),
		s.CurrentActivityStartedAt,
		s.LastConfirmationAt,
		s.PendingPromptAt,
		s.MissedConfirmations,
		s.TotalOthersMinutes,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

// ListLogEntries returns the day's activity ledger newest-first with cursor
// pagination.
func (r *Repository) ListLogEntries(ctx context.Context, agentID, businessDate string, cursor *persistence.LogCursor, limit int) ([]domain.LogEntry, *persistence.LogCursor, error) {
	args := []interface{}{agentID, businessDate, limit}
	query := `SELECT entry_id, agent_id, business_date, activity_type, started_at, ended_at, details, auto_flag
        FROM activity_log WHERE agent_id=$1 AND business_date=$2`

	if cursor != nil {
		query += ` AND (started_at, entry_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.EntryID)
	}
	query += ` ORDER BY started_at DESC, entry_id DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	entries := make([]domain.LogEntry, 0, limit)
	for rows.Next() {
		var (
			entry    domain.LogEntry
			date     time.Time
			details  *string
			autoFlag *string
		)
		if err := rows.Scan(&entry.EntryID, &entry.AgentID, &date, &entry.Activity, &entry.StartedAt, &entry.EndedAt, &details, &autoFlag); err != nil {
			return nil, nil, err
		}
		entry.BusinessDate = date.Format("2006-01-02")
		entry.Details = deref(details)
		entry.AutoFlag = deref(autoFlag)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *persistence.LogCursor
	if len(entries) == limit {
		last := entries[len(entries)-1]
		next = &persistence.LogCursor{StartedAt: last.StartedAt, EntryID: last.EntryID}
	}
	return entries, next, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s               domain.Session
		date            time.Time
		endReason       *string
		currentActivity *string
	)
	if err := row.Scan(
		&s.ID, &s.AgentID, &date, &s.StartTime, &s.EndTime, &s.IsActive, &endReason,
		&currentActivity, &s.CurrentActivityStartedAt, &s.LastConfirmationAt, &s.PendingPromptAt,
		&s.MissedConfirmations, &s.TotalOthersMinutes, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.BusinessDate = date.Format("2006-01-02")
	s.EndReason = domain.EndReason(deref(endReason))
	s.CurrentActivity = domain.ActivityType(deref(currentActivity))
	return &s, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, s domain.Session, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"session",
		s.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		s.AgentID,
		body,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeAlertRequested: {
		Topic:         events.TopicSupervisorAlerts,
		SchemaSubject: events.TopicSupervisorAlerts + "-value",
	},
	events.TypeAttendanceMarked: {
		Topic:         events.TopicAttendance,
		SchemaSubject: events.TopicAttendance + "-value",
	},
	events.TypeSessionUpdated: {
		Topic:         events.TopicSessionUpdates,
		SchemaSubject: events.TopicSessionUpdates + "-value",
	},
}
