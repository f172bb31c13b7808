// Package outbox persists and delivers session events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains the outbox table and delivers events to Kafka with
// Confluent wire framing. Alert and attendance delivery happens here, after
// the session transition already committed, so a slow or failing sink can
// never roll back a transition.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// processBatch claims one batch of unpublished rows and delivers it. A batch
// that cannot be delivered is written to the DLQ and marked published so it
// is never produced twice.
func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	batch, err := d.claimBatch(ctx)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.publish(ctx, batch); err != nil {
		log.Printf("outbox: delivery failure: %v", err)
		failedCounter.Add(float64(len(batch)))
		for _, msg := range batch {
			if dlqErr := d.dlq.Write(ctx, msg, fmt.Sprintf("%s (topic=%s)", err.Error(), msg.Topic)); dlqErr != nil {
				return dlqErr
			}
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
		return d.markPublished(ctx, batch)
	}

	deliveredCounter.Add(float64(len(batch)))
	return d.markPublished(ctx, batch)
}

// claimBatch selects the oldest unpublished rows with SKIP LOCKED so several
// dispatcher replicas never fight over the same events, and stamps them as
// claimed inside the same transaction.
func (d *Dispatcher) claimBatch(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
           FROM outbox
          WHERE published_at IS NULL
          ORDER BY event_id
          LIMIT $1
            FOR UPDATE SKIP LOCKED`,
		d.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []Message
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload); err != nil {
			return nil, err
		}
		batch = append(batch, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(batch) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	ids := make([]int64, 0, len(batch))
	for _, msg := range batch {
		ids = append(ids, msg.EventID)
	}
	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

// publish frames and produces the batch, grouped per topic so each topic's
// records go out in one write.
func (d *Dispatcher) publish(ctx context.Context, batch []Message) error {
	byTopic := make(map[string][]kafka.Message)
	for _, msg := range batch {
		record, err := d.frame(ctx, msg)
		if err != nil {
			return err
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], record)
	}

	for topic, records := range byTopic {
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			return err
		}
	}
	return nil
}

// frame resolves the schema id for the event and wraps the payload in
// Confluent wire format. Schema ids are cached per (subject, schema) for the
// process lifetime.
func (d *Dispatcher) frame(ctx context.Context, msg Message) (kafka.Message, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	cacheKey := msg.SchemaSubject + "::" + meta.Schema
	var schemaID int
	if cached, ok := d.schemaIDCache.Load(cacheKey); ok {
		schemaID = cached.(int)
	} else {
		id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, meta.Schema)
		if err != nil {
			return kafka.Message{}, err
		}
		d.schemaIDCache.Store(cacheKey, id)
		schemaID = id
	}

	value := make([]byte, 5+len(msg.Payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], msg.Payload)

	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			{Key: "agent_id", Value: []byte(msg.PartitionKey)},
		},
	}, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, batch []Message) error {
	ids := make([]int64, 0, len(batch))
	for _, msg := range batch {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

// Message is one row claimed from the outbox table.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}
