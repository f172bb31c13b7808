package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQManager replays dead-lettered outbox events. Each due entry is
// reinserted into the primary outbox; entries that keep failing back off
// exponentially and are quarantined once the retry budget is spent.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// RunOnce processes one batch of due DLQ entries and returns how many were
// successfully re-queued. Per-entry failures are joined into the returned
// error but never stop the batch.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`,
		batchSize)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var due []dlqEntry
	for rows.Next() {
		var entry dlqEntry
		if scanErr := rows.Scan(&entry.ID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason,
			&entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount); scanErr != nil {
			err = errors.Join(err, scanErr)
			continue
		}
		due = append(due, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = errors.Join(err, rowsErr)
	}
	rows.Close()

	processed := 0
	for _, entry := range due {
		if procErr := m.process(ctx, entry); procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		processed++
		recordDLQProcessed(entry)
	}

	updateBacklogGauge(ctx, m.pool)
	return processed, err
}

// process re-queues or quarantines a single entry in one transaction.
func (m *DLQManager) process(ctx context.Context, entry dlqEntry) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			"retry limit reached", entry.ID,
		); err != nil {
			return err
		}
		recordDLQQuarantined(entry)
		return tx.Commit(ctx)
	}

	if requeueErr := m.requeue(ctx, tx, entry); requeueErr != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
                SET retry_count = retry_count + 1,
                    last_attempt_at = NOW(),
                    next_retry_at = NOW() + $1::interval,
                    reason = $2
              WHERE dlq_id = $3`,
			m.backoff(entry.RetryCount+1), requeueErr.Error(), entry.ID,
		); err != nil {
			return err
		}
		recordDLQRetry(entry)
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return err
	}
	recordDLQRequeued(entry)
	return tx.Commit(ctx)
}

// backoff doubles per attempt, capped at one hour.
func (m *DLQManager) backoff(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// requeue reinserts the payload into the outbox so the dispatcher replays it.
func (m *DLQManager) requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
          VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
	)
	return err
}

// dlqEntry is an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
