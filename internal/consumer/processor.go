// Package consumer materialises session events into the supervisor alert
// inbox and the attendance ledger.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the slice of kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a Kafka record produced by the outbox dispatcher, with the
// Confluent framing stripped and the routing headers lifted out.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AgentID       string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from one topic, decodes them, and hands them to
// the Handler. Commit happens only after the handler succeeds, except for
// undecodable records which are committed immediately to avoid poison-pill
// loops.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks processing messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		p.processOne(ctx, msg)
	}
}

func (p *Processor) processOne(ctx context.Context, msg kafka.Message) {
	event, err := decodeMessage(msg)
	if err != nil {
		p.logger.Printf("dropping undecodable record (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
		recordDecodeError(msg.Topic)
		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error after decode failure: %v", commitErr)
		}
		return
	}

	if err := p.handler.Handle(ctx, event); err != nil {
		// Uncommitted: the record is redelivered and retried.
		p.logger.Printf("handler error (event_type=%s, agent=%s): %v", event.EventType, event.AgentID, err)
		recordHandlerError(event)
		return
	}

	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit error: %v", err)
		return
	}
	recordProcessed(event)
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("value too short for wire framing: %d bytes", len(msg.Value))
	}

	event := Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		SchemaID:  int(binary.BigEndian.Uint32(msg.Value[1:5])),
		Payload:   json.RawMessage(append([]byte(nil), msg.Value[5:]...)),
	}

	for _, header := range msg.Headers {
		switch header.Key {
		case "event_type":
			event.EventType = string(header.Value)
		case "agent_id":
			event.AgentID = string(header.Value)
		case "schema_subject":
			event.SchemaSubject = string(header.Value)
		}
	}
	if event.EventType == "" {
		return Message{}, errors.New("missing event_type header")
	}
	return event, nil
}
