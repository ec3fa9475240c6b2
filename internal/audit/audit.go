// Package audit records every completed query's outcome to MySQL, the
// way burrowctl's server opens a pooled *sql.DB with SetMaxIdleConns /
// SetMaxOpenConns / SetConnMaxLifetime tuned from its ServerConfig.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Record is one completed query, successful or not.
type Record struct {
	WorkerIndex int
	ServerIndex int
	PacketID    int
	Success     bool
	Error       string
	RetransUsed int
	CompletedAt time.Time
}

// Recorder is what radiusclient.Client needs from an audit sink, just
// enough to hand off a completed outcome without that package depending
// on Sink's MySQL-specific internals. *Sink satisfies it.
type Recorder interface {
	Record(Record)
}

// Config holds the pool tuning and queueing knobs.
type Config struct {
	DSN       string
	Table     string
	QueueSize int

	MaxIdleConns int
	MaxOpenConns int
	ConnLifetime time.Duration
}

// DefaultConfig mirrors DefaultServerConfig's database pool defaults.
func DefaultConfig() Config {
	return Config{
		Table:        "radius_query_audit",
		QueueSize:    2000,
		MaxIdleConns: 10,
		MaxOpenConns: 25,
		ConnLifetime: 10 * time.Minute,
	}
}

// Sink is a bounded-channel-backed MySQL writer. Under backpressure it
// drops the oldest queued record rather than the incoming one: a slow
// consumer should lose stale history, not the most recent outcome, since
// the most recent record is the one an operator debugging a live incident
// actually wants.
type Sink struct {
	cfg Config
	db  *sql.DB

	mu      sync.Mutex
	records chan Record
	stopped chan struct{}
}

// New opens cfg.DSN, tunes the pool, and starts the background writer.
func New(cfg Config) (*Sink, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit: opening mysql: %w", err)
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	s := &Sink{
		cfg:     cfg,
		db:      db,
		records: make(chan Record, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
	go s.loop()
	log.Printf("[audit] writing query outcomes to table %q (idle=%d open=%d lifetime=%s)",
		cfg.Table, cfg.MaxIdleConns, cfg.MaxOpenConns, cfg.ConnLifetime)
	return s, nil
}

// Record enqueues rec, dropping the oldest queued record first if the
// queue is already full.
func (s *Sink) Record(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.records <- rec:
		return
	default:
	}
	select {
	case <-s.records:
	default:
	}
	select {
	case s.records <- rec:
	default:
	}
}

func (s *Sink) loop() {
	defer close(s.stopped)
	query := fmt.Sprintf(
		`INSERT INTO %s (worker_index, server_index, packet_id, success, error, retrans_used, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.cfg.Table,
	)
	for rec := range s.records {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := s.db.ExecContext(ctx, query,
			rec.WorkerIndex, rec.ServerIndex, rec.PacketID, rec.Success, rec.Error, rec.RetransUsed, rec.CompletedAt)
		cancel()
		if err != nil {
			log.Printf("[audit] insert failed: %v", err)
		}
	}
}

// Close stops accepting new records, drains the queue, and closes the
// database pool.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.records)
	<-s.stopped
	return s.db.Close()
}
