package radiusclient

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/go-radius-client/internal/acctsink"
	"github.com/lordbasex/go-radius-client/internal/audit"
)

// fakePublisher and fakeRecorder stand in for acctsink.Sink/audit.Sink:
// they satisfy the narrow Publisher/Recorder interfaces without an AMQP
// broker or a MySQL connection behind them.
type fakePublisher struct {
	mu     sync.Mutex
	events []acctsink.Event
}

func (f *fakePublisher) Publish(ev acctsink.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (f *fakeRecorder) Record(r audit.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newObservedTestClient(t *testing.T, pub *fakePublisher, rec *fakeRecorder) *Client {
	t.Helper()
	settings := DefaultSettings()
	settings.SocketsMaxPerThread = 2
	c, err := NewClient(settings, 1, WithAccountingPublisher(pub), WithAuditSink(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Destroy(context.Background()) })
	return c
}

func TestObserveCompletionRecordsEveryCompletionAndPublishesAccountingOnly(t *testing.T) {
	secret := []byte("testing123")
	serverAddr := fakeRADIUSServer(t, secret)

	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	c := newObservedTestClient(t, pub, rec)
	require.NoError(t, c.AddServer(ServerSettings{
		Addr:   serverAddr,
		Secret: secret,
		Policy: DefaultRetransmitPolicy(),
	}))

	// Access-Request: the audit recorder sees it, the accounting
	// publisher does not.
	accessBuf := make([]byte, 20, 64)
	accessBuf[0] = 1 // Access-Request
	accessBuf[3] = 20

	done := make(chan struct{})
	_, err := c.Query1(0, AutoID, accessBuf, func(*Query, []byte, error, interface{}) {
		close(done)
	}, nil)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("access-request query never completed")
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, pub.count())

	// Accounting-Request: both see it.
	acctBuf := make([]byte, 20, 64)
	acctBuf[0] = 4 // Accounting-Request
	acctBuf[3] = 20

	done2 := make(chan struct{})
	_, err = c.Query1(0, AutoID, acctBuf, func(*Query, []byte, error, interface{}) {
		close(done2)
	}, nil)
	require.NoError(t, err)
	select {
	case <-done2:
	case <-time.After(2 * time.Second):
		t.Fatal("accounting-request query never completed")
	}

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestObserveCompletionNotReachedOnEnqueueTimeFailure(t *testing.T) {
	// No server registered, so the query fails synchronously at enqueue
	// with ErrNoServer and never reaches the worker's completeQuery path;
	// this confirms observeCompletion only ever sees queries that made it
	// past enqueue, and is a no-op (no panic, no record) when it doesn't.
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	c := newObservedTestClient(t, pub, rec)

	buf := make([]byte, 20, 64)
	buf[0] = 1
	buf[3] = 20

	_, err := c.Query1(0, AutoID, buf, func(*Query, []byte, error, interface{}) {}, nil)
	assert.ErrorIs(t, err, ErrNoServer)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 0, pub.count())
}

func TestObserveCompletionRunsEvenWhenCallbackCancelled(t *testing.T) {
	// A server that never replies. Cancel the query right after enqueue,
	// then force it to completion via Destroy: the callback must stay
	// silent, but the audit recorder still sees the outcome, since it
	// records what happened on the wire independent of whether the
	// caller is still listening.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Built directly rather than via newObservedTestClient, which defers
	// its own Destroy: this test calls Destroy itself to force completion
	// and a second call would block forever waiting on a worker whose run
	// loop already exited.
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	settings := DefaultSettings()
	settings.SocketsMaxPerThread = 2
	c, err := NewClient(settings, 1, WithAccountingPublisher(pub), WithAuditSink(rec))
	require.NoError(t, err)
	require.NoError(t, c.AddServer(ServerSettings{
		Addr:   conn.LocalAddr().(*net.UDPAddr),
		Secret: []byte("s"),
		Policy: DefaultRetransmitPolicy(),
	}))

	buf := make([]byte, 20, 64)
	buf[0] = 1
	buf[3] = 20

	called := make(chan struct{})
	q, err := c.Query1(0, AutoID, buf, func(*Query, []byte, error, interface{}) {
		close(called)
	}, nil)
	require.NoError(t, err)
	q.Cancel()

	require.NoError(t, c.Destroy(context.Background()))

	select {
	case <-called:
		t.Fatal("callback ran after Cancel")
	default:
	}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
}
