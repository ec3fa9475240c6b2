package radiusclient

import (
	"time"

	"github.com/lordbasex/go-radius-client/internal/timerwheel"
)

// workerMsg is a unit of cross-goroutine work posted to a worker's
// mailbox — the Go-channel analogue of the original design's
// msg_send(target, cb, udata): a closure that runs on the target
// worker's own goroutine, so it may freely touch that worker's
// socket pools, slot tables, and timer wheel without locking.
type workerMsg func(w *worker)

// worker is one event-loop goroutine: all per-worker state (the v4/v6
// socket pools, their slot tables, and the timer wheel) is touched only
// from this goroutine's run loop, by construction — nothing outside
// worker.go and its sibling files ever reaches into a *worker's fields
// directly.
type worker struct {
	idx    int
	client *Client

	mailbox chan workerMsg

	pool4 *socketPool
	pool6 *socketPool

	wheel *timerwheel.Wheel[*Query]

	stopped bool

	now func() time.Time
}

func newWorker(idx int, c *Client) *worker {
	return &worker{
		idx:     idx,
		client:  c,
		mailbox: make(chan workerMsg, c.settings.QueueMaxPerThread),
		wheel:   timerwheel.New[*Query](),
		now:     time.Now,
	}
}

// run is the worker's event loop: it blocks on either the next mailbox
// message or the earliest armed timer, dispatch-mode (one-shot; a fired
// timer must be explicitly re-armed to fire again).
func (w *worker) run() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		var timerC <-chan time.Time
		if d, ok := w.wheel.Next(); ok {
			wait := time.Until(d)
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case msg, ok := <-w.mailbox:
			if !ok {
				return
			}
			msg(w)
			if w.stopped {
				return
			}
		case <-timerC:
			w.fireExpired()
		}
	}
}

// fireExpired handles every query whose timer has reached its deadline,
// in deadline order.
func (w *worker) fireExpired() {
	for _, q := range w.wheel.Expired(w.now()) {
		w.handleTimeout(q)
	}
}

// post tries to enqueue msg on w's mailbox without blocking, matching the
// engine's nonblocking dispatch discipline: a full mailbox is reported to
// the caller as ErrAgain rather than silently queued.
func (w *worker) post(msg workerMsg) error {
	select {
	case w.mailbox <- msg:
		return nil
	default:
		return ErrAgain
	}
}

// teardown tears down every socket (and, transitively, every in-flight
// query) this worker owns, then marks the worker stopped so its run loop
// exits after this message handler returns.
func (w *worker) teardown() {
	for _, pool := range []*socketPool{w.pool4, w.pool6} {
		if pool == nil {
			continue
		}
		for len(pool.sockets) > 0 {
			w.closeSocket(pool, pool.sockets[len(pool.sockets)-1])
		}
	}
	w.stopped = true
}
