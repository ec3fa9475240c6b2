package radiusclient

import (
	"context"
	"crypto/md5"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRADIUSServer answers every request it receives with an Access-Accept
// carrying a correctly computed Response-Authenticator, the way a loopback
// test double for a real RADIUS server would.
func fakeRADIUSServer(t *testing.T, secret []byte) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req := append([]byte(nil), buf[:n]...)

			reply := make([]byte, 20)
			reply[0] = 2 // Access-Accept
			reply[1] = req[1]
			reply[3] = 20

			h := md5.New()
			h.Write(reply[0:4])
			h.Write(req[4:20])
			h.Write(secret)
			sum := h.Sum(nil)
			copy(reply[4:20], sum)

			_, _ = conn.WriteToUDP(reply, from)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestQueryCompletesAgainstFakeServer(t *testing.T) {
	secret := []byte("testing123")
	serverAddr := fakeRADIUSServer(t, secret)

	c := newTestClient(t, 2)
	require.NoError(t, c.AddServer(ServerSettings{
		Addr:   serverAddr,
		Secret: secret,
		Policy: DefaultRetransmitPolicy(),
	}))

	buf := make([]byte, 20, 64)
	buf[0] = 1 // Access-Request
	buf[3] = 20

	done := make(chan struct{})
	var gotErr error
	_, err := c.Query1(0, AutoID, buf, func(q *Query, pkt []byte, err error, udata interface{}) {
		gotErr = err
		close(done)
	}, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("query never completed")
	}
	assert.NoError(t, gotErr)
}

func TestQueryCrossWorkerHopDeliversOnOriginWorker(t *testing.T) {
	secret := []byte("testing123")
	serverAddr := fakeRADIUSServer(t, secret)

	c := newTestClient(t, 2)
	require.NoError(t, c.AddServer(ServerSettings{
		Addr:   serverAddr,
		Secret: secret,
		Policy: DefaultRetransmitPolicy(),
	}))

	buf := make([]byte, 20, 64)
	buf[0] = 1
	buf[3] = 20

	done := make(chan int)
	_, err := c.Query(0, 1, AutoID, buf, func(q *Query, pkt []byte, err error, udata interface{}) {
		done <- q.originWorker
	}, nil)
	require.NoError(t, err)

	select {
	case originSeen := <-done:
		assert.Equal(t, 1, originSeen)
	case <-time.After(2 * time.Second):
		t.Fatal("query never completed")
	}
}

func TestQueryRejectsInvalidWorkerIndex(t *testing.T) {
	c := newTestClient(t, 1)
	buf := make([]byte, 20, 64)
	buf[0] = 1
	buf[3] = 20

	_, err := c.Query1(5, AutoID, buf, func(*Query, []byte, error, interface{}) {}, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestQueryRejectsNilCallback(t *testing.T) {
	c := newTestClient(t, 1)
	buf := make([]byte, 20, 64)
	_, err := c.Query1(0, AutoID, buf, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestCancelSuppressesCallback(t *testing.T) {
	// A server that never replies: the request sits waiting for a timeout
	// while we cancel it first and confirm the callback never runs.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := newTestClient(t, 1)
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

	select {
	case <-called:
		t.Fatal("callback ran after Cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestQueryContextCancelSuppressesCallback(t *testing.T) {
	secret := []byte("testing123")
	// A server that never replies: the request will sit waiting for a
	// timeout while we cancel the context first.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := newTestClient(t, 1)
	require.NoError(t, c.AddServer(ServerSettings{
		Addr:   conn.LocalAddr().(*net.UDPAddr),
		Secret: secret,
		Policy: DefaultRetransmitPolicy(),
	}))

	buf := make([]byte, 20, 64)
	buf[0] = 1
	buf[3] = 20

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{})
	_, err = c.QueryContext(ctx, 0, AutoID, buf, func(*Query, []byte, error, interface{}) {
		close(called)
	}, nil)
	require.NoError(t, err)
	cancel()

	select {
	case <-called:
		t.Fatal("callback ran after context cancellation")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDestroyCompletesInFlightQueriesWithErrIntr(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c, err := NewClient(DefaultSettings(), 1)
	require.NoError(t, err)
	require.NoError(t, c.AddServer(ServerSettings{
		Addr:   conn.LocalAddr().(*net.UDPAddr),
		Secret: []byte("s"),
		Policy: DefaultRetransmitPolicy(),
	}))

	buf := make([]byte, 20, 64)
	buf[0] = 1
	buf[3] = 20

	done := make(chan error, 1)
	_, err = c.Query1(0, AutoID, buf, func(q *Query, pkt []byte, err error, udata interface{}) {
		done <- err
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Destroy(context.Background()))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrIntr)
	case <-time.After(time.Second):
		t.Fatal("query never completed during shutdown")
	}
}
