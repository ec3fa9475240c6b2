package radiusclient

import (
	"net"

	"github.com/lordbasex/go-radius-client/internal/wire"
)

// startReceiver launches skt's read loop in its own goroutine. Inbound
// datagrams are not processed on the receiver goroutine itself — each one
// is posted back to w's mailbox as a closure, so that slot lookup, server
// validation, and query completion all happen on w's single event-loop
// goroutine, same as every other touch of w's state.
func (w *worker) startReceiver(skt *socketEntry) {
	go func() {
		buf := make([]byte, wire.MaxPacketSize)
		for {
			n, from, err := skt.conn.ReadFromUDP(buf)
			select {
			case <-skt.stopRecv:
				return
			default:
			}
			if err != nil {
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			if err := w.post(func(w *worker) { w.handleInbound(skt, from, data) }); err != nil {
				// Mailbox full: drop the datagram. The query it would have
				// completed stays armed and retries or times out normally.
				continue
			}
		}
	}()
}

// handleInbound matches one inbound datagram against the query waiting on
// its (socket, packet-id) slot, validates it, and completes the query on
// success. Any failure to match or validate is a silent drop: per spec,
// a malformed or unmatched reply never touches a query's timer or retry
// counters.
func (w *worker) handleInbound(skt *socketEntry, from *net.UDPAddr, data []byte) {
	if err := wire.Check(data); err != nil {
		return
	}
	id := wire.ID(data)
	q := skt.slots[id].query
	if q == nil {
		return
	}
	entry, ok := w.client.registry.at(q.serverIndex)
	if !ok || !addrEqual(entry.addr, from) {
		return
	}
	if err := wire.Verify(data, entry.secret, q.buf); err != nil {
		return
	}
	w.client.stats.incCompletion()
	w.completeQuery(q, data, nil)
}
