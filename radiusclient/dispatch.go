package radiusclient

import (
	"context"

	"github.com/lordbasex/go-radius-client/internal/wire"
)

// Query enqueues one RADIUS request. targetWorker is the worker that will
// own the socket, timer, and send for this query; originWorker is the
// worker whose goroutine the completion callback is delivered on. Passing
// the same index for both is the common case and the fast path (inline
// delivery, no copy); passing different indices exercises the engine's
// cross-worker hop and buffer-copy path, e.g. when an application pins
// callback delivery to a specific event loop.
//
// buf must have spare capacity beyond its current length: Access-Requests
// gain a NAS-Identifier attribute here. Outbound signing adds nothing; it
// fills a Message-Authenticator only if buf already carries one. The
// caller must not touch buf again until cb runs.
//
// Enqueue-time failures — ErrInvalidArg here, ErrAgain from a full
// mailbox, and ErrNoServer/ErrAgain from server selection or slot
// allocation on target_worker — are returned here, synchronously, and cb
// is never called: Query blocks until target_worker has run that first
// selection-and-allocation step. Every failure discovered afterwards
// (signing, the actual write, retransmission, failover) arrives through
// cb instead.
func (c *Client) Query(targetWorker, originWorker, idOrAuto int, buf []byte, cb Callback, udata interface{}) (*Query, error) {
	if cb == nil || buf == nil {
		return nil, ErrInvalidArg
	}
	if targetWorker < 0 || targetWorker >= len(c.workers) ||
		originWorker < 0 || originWorker >= len(c.workers) {
		return nil, ErrInvalidArg
	}
	if idOrAuto != AutoID && (idOrAuto < 0 || idOrAuto > 255) {
		return nil, ErrInvalidArg
	}

	if wire.IsAccessRequest(buf) {
		grown, err := wire.AppendAttribute(buf, cap(buf), wire.AttrNASIdentifier, c.settings.NASIdentifier)
		if err != nil {
			return nil, err
		}
		buf = grown
	}

	q := &Query{
		client:       c,
		targetWorker: targetWorker,
		originWorker: originWorker,
		idIsAuto:     idOrAuto == AutoID,
		buf:          buf,
		cb:           cb,
		udata:        udata,
		done:         make(chan struct{}),
	}
	if !q.idIsAuto {
		q.pktID = uint8(idOrAuto)
	}

	w := c.workers[targetWorker]
	prepared := make(chan error, 1)
	if err := w.post(func(w *worker) { w.handleNewQuery(q, prepared) }); err != nil {
		return nil, err
	}
	if err := <-prepared; err != nil {
		return nil, err
	}
	return q, nil
}

// Query1 is the common-case convenience wrapper: worker owns the socket,
// timer, send, and callback delivery, with no cross-worker hop.
func (c *Client) Query1(worker, idOrAuto int, buf []byte, cb Callback, udata interface{}) (*Query, error) {
	return c.Query(worker, worker, idOrAuto, buf, cb, udata)
}

// QueryContext is Query1 with ctx wired to the query's cancellation: if
// ctx is done before the query completes, Query.Cancel runs, same as if
// the caller had called it directly. Cancellation remains "go silent" —
// whatever in-flight path (timer, receiver, failover) eventually reaches
// completeQuery still runs to completion, it just delivers to no one.
func (c *Client) QueryContext(ctx context.Context, worker, idOrAuto int, buf []byte, cb Callback, udata interface{}) (*Query, error) {
	q, err := c.Query1(worker, idOrAuto, buf, cb, udata)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			q.Cancel()
		case <-q.cancelWatchDone():
		}
	}()
	return q, nil
}

// handleNewQuery runs on the target worker for a freshly enqueued query.
// It reports prepareSlot's result back to Query's caller over prepared —
// ErrNoServer/ErrAgain included — before that call ever returns, matching
// the documented enqueue-time synchronicity of those errors. Once a slot
// is secured, everything past that point (signing, the write itself, and
// every retransmission/failover beyond it) is post-enqueue and delivered
// through cb instead.
func (w *worker) handleNewQuery(q *Query, prepared chan<- error) {
	if err := w.prepareSlot(q); err != nil {
		prepared <- err
		return
	}
	prepared <- nil

	if err := w.signAndSend(q); err != nil {
		w.completeQuery(q, nil, err)
	}
}

// completeQuery detaches q from its socket/timer (a no-op if it's already
// detached, e.g. from a prior failover step), then delivers the result:
// inline if this worker is q's origin, or else hopped to the origin
// worker's mailbox with the reply copied into q's own buffer first (the
// one buffer the Query owns throughout its life, borrowed from the
// caller). A cancelled query (cb == nil) is simply dropped from cb's
// perspective, but the accounting/audit sinks still see it — they record
// what happened on the wire, independent of whether the caller is still
// listening.
func (w *worker) completeQuery(q *Query, reply []byte, err error) {
	w.detachSlot(q)
	defer close(q.done)

	reqCode := wire.PacketCode(q.buf)
	w.client.observeCompletion(q, reqCode, err)

	cb, udata := q.callback()
	if cb == nil {
		return
	}
	q.err = err

	if w.idx == q.originWorker {
		pkt := q.buf
		if err == nil && reply != nil {
			pkt = reply
		}
		cb(q, pkt, err, udata)
		return
	}

	pkt := q.buf
	if err == nil && reply != nil {
		n := copy(q.buf[:cap(q.buf)], reply)
		q.buf = q.buf[:n]
		pkt = q.buf
	}

	origin := w.client.workers[q.originWorker]
	deliver := func(*worker) { cb(q, pkt, err, udata) }
	select {
	case origin.mailbox <- deliver:
	default:
		// Best-effort delivery failed under backpressure. The design's
		// documented last resort: call back directly on this worker
		// rather than drop the completion.
		w.client.stats.incDegraded()
		cb(q, pkt, err, udata)
	}
}
