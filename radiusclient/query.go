package radiusclient

import (
	"sync"
	"time"
)

// AutoID requests that the engine pick an unused packet identifier on
// whichever socket has room, rather than binding the query to a specific
// caller-chosen ID.
const AutoID = -1

// Callback is invoked exactly once per Query, either with a successful
// reply (err == nil, pkt holding the wire bytes of the reply) or with one
// of the sentinel errors in errors.go (pkt holding the original request
// buffer, unchanged). It is never invoked after Query.Cancel, though the
// Query is still freed as usual.
type Callback func(q *Query, pkt []byte, err error, udata interface{})

// Query is one outstanding RADIUS request/response exchange. Most fields
// are touched only by the worker goroutine currently responsible for the
// query (dispatcher, timer, or receiver — never more than one at a time);
// cb and udata are the exception, guarded by mu so Cancel can clear
// them safely from any goroutine.
type Query struct {
	client *Client

	targetWorker int
	originWorker int

	skt   *socketEntry
	pktID uint8

	serverIndex int

	retransCount    int
	retransDuration time.Duration
	retransTime     time.Duration

	buf      []byte
	idIsAuto bool

	mu    sync.Mutex
	cb    Callback
	udata interface{}

	err error

	done chan struct{}
}

// Cancel atomically clears the completion callback so that whichever
// in-flight path (timer or receiver) eventually completes this query does
// so silently: the Query is still freed, but cb is never invoked. Cancel
// does not proactively dequeue the slot or stop the timer — avoiding that
// cross-goroutine race is exactly why cancellation is "go silent", not
// "tear down now".
func (q *Query) Cancel() {
	q.mu.Lock()
	q.cb = nil
	q.udata = nil
	q.mu.Unlock()
}

// ServerIndex returns the registry index of the server this query is
// currently (or was last) attached to. Exposed for tests and diagnostics.
func (q *Query) ServerIndex() int { return q.serverIndex }

// RetransCount returns the number of retransmissions sent against the
// current server.
func (q *Query) RetransCount() int { return q.retransCount }

func (q *Query) callback() (Callback, interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cb, q.udata
}

// cancelWatchDone returns the channel QueryContext's watcher goroutine
// waits on alongside ctx.Done, so that goroutine exits as soon as the
// query completes rather than lingering until the caller's context ends.
func (q *Query) cancelWatchDone() <-chan struct{} {
	return q.done
}
