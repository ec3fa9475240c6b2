// Package acctsink publishes completed Accounting-Request outcomes to an
// AMQP exchange, fire-and-forget, the way burrowctl's server.go dials
// RabbitMQ and publishes responses over a channel it owns.
package acctsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is one completed accounting exchange, published as JSON.
// CorrelationID lets a downstream consumer dedupe redeliveries and trace
// one event across the exchange and any store it lands in.
type Event struct {
	CorrelationID string    `json:"correlation_id"`
	ServerIndex   int       `json:"server_index"`
	PacketID      int       `json:"packet_id"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// NewEvent fills in CorrelationID, since the zero value of Event is never
// meant to be published directly.
func NewEvent(serverIndex, packetID int, success bool, errMsg string, completedAt time.Time) Event {
	return Event{
		CorrelationID: uuid.NewString(),
		ServerIndex:   serverIndex,
		PacketID:      packetID,
		Success:       success,
		Error:         errMsg,
		CompletedAt:   completedAt,
	}
}

// Publisher is what radiusclient.Client needs from an accounting sink:
// just enough to hand off a completed outcome without that package
// depending on Sink's AMQP-specific internals. *Sink satisfies it.
type Publisher interface {
	Publish(Event)
}

// Config holds the AMQP connection and queueing knobs.
type Config struct {
	URL       string
	Exchange  string
	QueueSize int
}

// DefaultConfig mirrors burrowctl's habit of a small always-usable default
// queue depth rather than an unbounded channel.
func DefaultConfig() Config {
	return Config{
		Exchange:  "radius.accounting",
		QueueSize: 1000,
	}
}

// Sink owns one AMQP connection and channel, draining a buffered Go
// channel of Events from a single background goroutine. A full queue
// drops the event rather than blocking the caller, since accounting
// publication is best-effort, not transactionally tied to the RADIUS
// exchange that produced it.
type Sink struct {
	cfg Config

	conn *amqp.Connection
	ch   *amqp.Channel

	events chan Event

	mu      sync.Mutex
	closed  bool
	stopped chan struct{}
}

// New dials url and declares cfg.Exchange, starting the background
// publish loop.
func New(cfg Config) (*Sink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("acctsink: dialing amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("acctsink: opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("acctsink: declaring exchange: %w", err)
	}

	s := &Sink{
		cfg:     cfg,
		conn:    conn,
		ch:      ch,
		events:  make(chan Event, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
	go s.loop()
	log.Printf("[acctsink] publishing accounting events to exchange %q", cfg.Exchange)
	return s, nil
}

// Publish enqueues ev for publication. It never blocks: a full queue
// drops ev and logs once.
func (s *Sink) Publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("[acctsink] queue full, dropping accounting event %s for server %d", ev.CorrelationID, ev.ServerIndex)
	}
}

func (s *Sink) loop() {
	defer close(s.stopped)
	for ev := range s.events {
		body, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[acctsink] marshal failed: %v", err)
			continue
		}
		err = s.ch.PublishWithContext(context.Background(), s.cfg.Exchange, "", false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   ev.CompletedAt,
			Body:        body,
		})
		if err != nil {
			log.Printf("[acctsink] publish failed: %v", err)
		}
	}
}

// Close stops accepting new events, drains what's already queued, and
// closes the AMQP channel and connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.events)
	<-s.stopped
	s.ch.Close()
	return s.conn.Close()
}
