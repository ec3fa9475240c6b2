// Package radiusclient implements a concurrent RADIUS client engine: a
// fixed pool of worker goroutines, each owning its own UDP sockets, packet-
// ID slot tables, and retransmission timers, dispatching queries posted
// from any goroutine and delivering completions back through a callback.
package radiusclient

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lordbasex/go-radius-client/internal/acctsink"
	"github.com/lordbasex/go-radius-client/internal/audit"
	"github.com/lordbasex/go-radius-client/internal/wire"
)

// Client is a running RADIUS client engine: numWorkers event-loop
// goroutines sharing one server registry. Once created, a Client answers
// queries until Destroy is called.
type Client struct {
	settings Settings
	workers  []*worker
	registry *registry
	stats    engineStats

	acctPublisher acctsink.Publisher
	auditRecorder audit.Recorder
}

// Option customizes a Client at creation time.
type Option func(*Client)

// WithAccountingPublisher wires p as the destination for completed
// Accounting-Request outcomes. Publishing happens off the RADIUS hot
// path and fire-and-forget: a publish failure is p's concern (logged by
// p), never the originating query's — it neither blocks nor fails the
// completion it was handed a copy of.
func WithAccountingPublisher(p acctsink.Publisher) Option {
	return func(c *Client) { c.acctPublisher = p }
}

// WithAuditSink wires r to record every completed query's outcome,
// whatever its packet code, for compliance reporting.
func WithAuditSink(r audit.Recorder) Option {
	return func(c *Client) { c.auditRecorder = r }
}

// NewClient starts numWorkers worker goroutines and returns a Client ready
// to accept AddServer and Query calls. numWorkers must be at least 1.
func NewClient(settings Settings, numWorkers int, opts ...Option) (*Client, error) {
	if numWorkers < 1 {
		return nil, ErrInvalidArg
	}
	if err := settings.normalize(); err != nil {
		return nil, err
	}

	c := &Client{
		settings: settings,
		registry: newRegistry(settings.ServersMax),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.workers = make([]*worker, numWorkers)
	for i := range c.workers {
		c.workers[i] = newWorker(i, c)
	}
	for _, w := range c.workers {
		go w.run()
	}
	return c, nil
}

// NumWorkers returns the number of worker goroutines this client was
// created with.
func (c *Client) NumWorkers() int { return len(c.workers) }

// AddServer registers a new RADIUS server, returning ErrNoCapacity once
// ServersMax entries are already registered.
func (c *Client) AddServer(s ServerSettings) error {
	return c.registry.add(s)
}

// RemoveServer removes the server at registry index idx. Queries already
// in flight re-validate their stored server index on their next timer
// fire: one whose index is now out of range completes with ErrNoServer,
// and one whose index now names a different server carries on against
// that server.
func (c *Client) RemoveServer(idx int) {
	c.registry.removeAt(idx)
}

// RemoveServerByAddr removes the first registered server matching addr, if
// any.
func (c *Client) RemoveServerByAddr(addr *net.UDPAddr) {
	c.registry.removeByAddr(addr)
}

// SetServerEnabled toggles whether failover/initial selection will pick
// the server at idx, without removing it from the registry.
func (c *Client) SetServerEnabled(idx int, enabled bool) {
	c.registry.setEnabled(idx, enabled)
}

// ServerCount returns the number of servers currently registered.
func (c *Client) ServerCount() int {
	return c.registry.len()
}

// Destroy tears down every worker: each worker's sockets are closed and
// every query still holding a slot completes with ErrIntr. Workers are
// torn down concurrently and Destroy waits for all of them, using
// errgroup to propagate the first teardown failure (a full mailbox
// refusing the teardown message) rather than hanging indefinitely.
func (c *Client) Destroy(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range c.workers {
		w := w
		g.Go(func() error {
			done := make(chan struct{})
			err := w.post(func(w *worker) {
				w.teardown()
				close(done)
			})
			if err != nil {
				return err
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// observeCompletion hands q's outcome to whichever sinks Client was built
// with: the audit recorder sees every completion regardless of packet
// code, the accounting publisher only Accounting-Request ones. reqCode is
// the original request's code, captured by the caller before q.buf can be
// overwritten by a reply copy.
func (c *Client) observeCompletion(q *Query, reqCode wire.Code, err error) {
	if c.auditRecorder == nil && c.acctPublisher == nil {
		return
	}

	completedAt := time.Now()
	success := err == nil
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	if c.auditRecorder != nil {
		c.auditRecorder.Record(audit.Record{
			WorkerIndex: q.targetWorker,
			ServerIndex: q.serverIndex,
			PacketID:    int(q.pktID),
			Success:     success,
			Error:       errMsg,
			RetransUsed: q.retransCount,
			CompletedAt: completedAt,
		})
	}

	if c.acctPublisher != nil && reqCode == wire.CodeAccountingRequest {
		c.acctPublisher.Publish(acctsink.NewEvent(q.serverIndex, int(q.pktID), success, errMsg, completedAt))
	}
}
