package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	sessionUpdatesExchange = "session_updates"
	archiveQueue           = "analyses"
)

type archiveMessage struct {
	Type     string          `json:"type"`
	Analysis *AnalysisRecord `json:"analysis,omitempty"`
	Resume   *ResumeUpload   `json:"resume,omitempty"`
}

type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Broker publishes session updates and archive records to RabbitMQ.
type Broker struct {
	conn    *amqp.Connection
	channel func() (publishChannel, error)
	consume func() (<-chan amqp.Delivery, io.Closer, error)
	logger  *slog.Logger
}

func NewBroker(conn *amqp.Connection, logger *slog.Logger) *Broker {
	return &Broker{
		conn: conn,
		channel: func() (publishChannel, error) {
			return conn.Channel()
		},
		consume: func() (<-chan amqp.Delivery, io.Closer, error) {
			return openArchiveConsumer(conn)
		},
		logger: logger,
	}
}

// Setup declares the update exchange and the archive queue.
func (b *Broker) Setup() error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("error connecting to rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		sessionUpdatesExchange, // name
		"topic",                // kind
		true,                   // durable
		false,                  // auto-delete
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		archiveQueue, // queue name
		true,         // durable (survives broker restarts)
		false,        // auto-delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

func (b *Broker) publish(exchange, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ch, err := b.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return ch.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (b *Broker) RecordStatus(_ context.Context, sessionID uuid.UUID, status string) error {
	update := map[string]any{
		"session_id": sessionID,
		"status":     status,
		"message":    statusMessage(status),
		"timestamp":  time.Now(),
	}
	return b.publish(sessionUpdatesExchange, fmt.Sprintf("session.%s", sessionID), update)
}

func (b *Broker) RecordAnalysis(_ context.Context, rec AnalysisRecord) error {
	return b.publish("", archiveQueue, archiveMessage{Type: "analysis", Analysis: &rec})
}

func (b *Broker) RecordResume(_ context.Context, upload ResumeUpload) error {
	return b.publish("", archiveQueue, archiveMessage{Type: "resume", Resume: &upload})
}

func statusMessage(status string) string {
	switch status {
	case StatusProcessing:
		return "analysis started"
	case StatusCompleted:
		return "analysis completed"
	case StatusFailed:
		return "analysis failed"
	default:
		return status
	}
}

var (
	errMalformedArchiveMessage = errors.New("malformed archive message")
	errUnknownArchiveMessage   = errors.New("unknown archive message")
)

// handleArchiveMessage stores one queued record through store.
func handleArchiveMessage(ctx context.Context, body []byte, store *DBRecorder) error {
	var msg archiveMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformedArchiveMessage, err)
	}
	switch {
	case msg.Type == "analysis" && msg.Analysis != nil:
		return store.storeAnalysis(ctx, *msg.Analysis)
	case msg.Type == "resume" && msg.Resume != nil:
		return store.storeResume(ctx, *msg.Resume)
	default:
		return fmt.Errorf("%w: %q", errUnknownArchiveMessage, msg.Type)
	}
}

type disposition int

const (
	ackMessage disposition = iota
	dropMessage
	requeueMessage
	// the channel closes on shutdown and the broker redelivers
	leaveUnacked
)

// archiveDisposition decides what happens to a delivery after handling it.
// Only messages that can never be stored are dropped.
func archiveDisposition(ctx context.Context, err error) disposition {
	switch {
	case err == nil:
		return ackMessage
	case errors.Is(err, errMalformedArchiveMessage), errors.Is(err, errUnknownArchiveMessage):
		return dropMessage
	case ctx.Err() != nil:
		return leaveUnacked
	default:
		return requeueMessage
	}
}

func openArchiveConsumer(conn *amqp.Connection) (<-chan amqp.Delivery, io.Closer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to rabbitmq channel: %w", err)
	}
	msgs, err := ch.Consume(
		archiveQueue, // queue name
		"",           // consumer tag
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("error consuming rabbitmq message: %w", err)
	}
	return msgs, ch, nil
}

func (b *Broker) archiveWorker(ctx context.Context, id int, store *DBRecorder, wg *sync.WaitGroup) {
	defer wg.Done()

	msgs, ch, err := b.consume()
	if err != nil {
		b.logger.Error("archive worker failed to start", "worker", id+1, "error", err)
		return
	}
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				b.logger.Warn("archive queue closed", "worker", id+1)
				return
			}
			err := handleArchiveMessage(ctx, msg.Body, store)
			switch archiveDisposition(ctx, err) {
			case ackMessage:
				_ = msg.Ack(false)
			case dropMessage:
				b.logger.Error("dropping archive message", "worker", id+1, "error", err)
				_ = msg.Nack(false, false)
			case requeueMessage:
				b.logger.Warn("failed to archive message, requeueing", "worker", id+1, "error", err)
				_ = msg.Nack(false, true)
			case leaveUnacked:
				return
			}
		}
	}
}

// StartArchiveWorkerPool consumes the archive queue into store until ctx
// is cancelled. It blocks until every worker has returned.
func (b *Broker) StartArchiveWorkerPool(ctx context.Context, numWorkers int, store *DBRecorder) {
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := range numWorkers {
		b.logger.Info("archive worker started", "worker", i+1)
		go b.archiveWorker(ctx, i, store, &wg)
	}
	wg.Wait()
}
