package radiusclient

import (
	"net"
)

const slotCount = 256

// slot is one entry of a socket's 256-entry packet-ID table. It is
// occupied iff query is non-nil; the Query back-reference is how the
// engine proves the slot-uniqueness invariant: at most one live Query per
// (socket, packet-id), and every live Query has exactly one such
// back-reference.
type slot struct {
	query *Query
}

// socketEntry owns one UDP socket together with its slot table. A
// socketEntry is created lazily (on first query needing a slot with none
// free) and destroyed once it holds no live queries, the pool is above
// its configured minimum, and the socket is the pool's last element
// (stable-tail shrink, so surviving sockets keep their index).
type socketEntry struct {
	conn  *net.UDPConn
	slots [slotCount]slot

	occupied int
	nextHint uint8

	pool *socketPool

	stopRecv chan struct{}
}

// socketPool is the ordered set of sockets for one (worker, address
// family) pair.
type socketPool struct {
	family        byte // 4 or 6, by net.IP.To4() nil-ness
	worker        *worker
	sockets       []*socketEntry
	totalOccupied int
}

func familyOf(addr *net.UDPAddr) byte {
	if addr.IP.To4() != nil {
		return 4
	}
	return 6
}

// newSocket binds a fresh nonblocking UDP socket for pool's family, tunes
// its buffers from the client's settings, and starts its receiver
// goroutine. It does not add the socket to the pool; callers do that once
// allocation has otherwise succeeded.
func (w *worker) newSocket(pool *socketPool) (*socketEntry, error) {
	network := "udp4"
	if pool.family == 6 {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, &OSError{Err: err}
	}
	if w.client.settings.SocketRcvBuf > 0 {
		_ = conn.SetReadBuffer(w.client.settings.SocketRcvBuf)
	}
	if w.client.settings.SocketSndBuf > 0 {
		_ = conn.SetWriteBuffer(w.client.settings.SocketSndBuf)
	}
	skt := &socketEntry{
		conn:     conn,
		pool:     pool,
		stopRecv: make(chan struct{}),
	}
	w.startReceiver(skt)
	return skt, nil
}

// newSocketIfAllowed creates and registers a new socket in pool, unless
// the pool is already at SocketsMaxPerThread, in which case it returns
// ErrAgain: the caller must retry later, the engine never queues
// internally.
func (w *worker) newSocketIfAllowed(pool *socketPool) (*socketEntry, error) {
	if len(pool.sockets) >= w.client.settings.SocketsMaxPerThread {
		return nil, ErrAgain
	}
	skt, err := w.newSocket(pool)
	if err != nil {
		return nil, err
	}
	pool.sockets = append(pool.sockets, skt)
	return skt, nil
}

// probeFrom runs the two-segment linear probe for auto-ID allocation:
// scan from hint to 255, then wrap around from 0 to hint.
func probeFrom(skt *socketEntry, hint uint8) (uint8, bool) {
	for i := int(hint); i < slotCount; i++ {
		if skt.slots[i].query == nil {
			return uint8(i), true
		}
	}
	for i := 0; i < int(hint); i++ {
		if skt.slots[i].query == nil {
			return uint8(i), true
		}
	}
	return 0, false
}

// allocSlot resolves a (socket, packet-id) pair for q within pool,
// creating a new socket if every existing one is full and the pool has
// room. It does not attach q to the slot; call attachSlot with the
// result to do that.
func (w *worker) allocSlot(pool *socketPool, q *Query) (*socketEntry, uint8, error) {
	if !q.idIsAuto {
		id := q.pktID
		for _, skt := range pool.sockets {
			if skt.slots[id].query == nil {
				return skt, id, nil
			}
		}
		skt, err := w.newSocketIfAllowed(pool)
		if err != nil {
			return nil, 0, err
		}
		return skt, id, nil
	}

	for _, skt := range pool.sockets {
		if skt.occupied >= slotCount {
			continue
		}
		if id, ok := probeFrom(skt, skt.nextHint); ok {
			return skt, id, nil
		}
	}
	skt, err := w.newSocketIfAllowed(pool)
	if err != nil {
		return nil, 0, err
	}
	id, _ := probeFrom(skt, skt.nextHint) // a fresh socket always has slot 0 free
	return skt, id, nil
}

// attachSlot binds q into skt's slot table at id and updates occupancy
// counters. It does not arm q's retransmission timer; send does that once
// q.retransTime has been computed.
func (w *worker) attachSlot(skt *socketEntry, id uint8, q *Query) {
	skt.slots[id].query = q
	skt.occupied++
	skt.pool.totalOccupied++
	if q.idIsAuto {
		skt.nextHint = id + 1
	}
	q.skt = skt
	q.pktID = id
}

// detachSlot clears q's slot (if attached), cancels its timer, updates
// occupancy, and applies the stable-tail shrink rule: a socket is freed
// once it holds no live queries, the pool is above its configured
// minimum, and the socket is the pool's last element, so surviving
// sockets never change index.
func (w *worker) detachSlot(q *Query) {
	if q.skt == nil {
		return
	}
	skt := q.skt
	skt.slots[q.pktID].query = nil
	skt.occupied--
	skt.pool.totalOccupied--
	w.wheel.Cancel(q)
	q.skt = nil

	pool := skt.pool
	if skt.occupied == 0 &&
		len(pool.sockets) > w.client.settings.SocketsMinPerThread &&
		pool.sockets[len(pool.sockets)-1] == skt {
		w.closeSocket(pool, skt)
	}
}

// closeSocket stops skt's receiver, closes the OS socket, removes it from
// pool, and — for any query still occupying a slot (only reachable from
// teardown, since detachSlot's caller guarantees occupied == 0 for the
// shrink path) — completes that query with ErrIntr.
func (w *worker) closeSocket(pool *socketPool, skt *socketEntry) {
	close(skt.stopRecv)
	_ = skt.conn.Close()

	for i := range skt.slots {
		if q := skt.slots[i].query; q != nil {
			skt.slots[i].query = nil
			q.skt = nil // prevent detachSlot from looping back into this socket
			w.completeQuery(q, nil, ErrIntr)
		}
	}

	for i, s := range pool.sockets {
		if s == skt {
			pool.sockets = append(pool.sockets[:i], pool.sockets[i+1:]...)
			break
		}
	}
}

// poolFor returns the worker's socket pool matching addr's address
// family, creating it on first use.
func (w *worker) poolFor(addr *net.UDPAddr) *socketPool {
	if familyOf(addr) == 4 {
		if w.pool4 == nil {
			w.pool4 = &socketPool{family: 4, worker: w}
		}
		return w.pool4
	}
	if w.pool6 == nil {
		w.pool6 = &socketPool{family: 6, worker: w}
	}
	return w.pool6
}
