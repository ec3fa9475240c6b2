package radiusclient

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/lordbasex/go-radius-client/internal/wire"
)

// jitter perturbs a retransmission interval so that many clients retrying
// against the same server don't resynchronize their retransmissions. The
// formula is pinned, not merely "some randomization": given k derived
// from a CRC-32 of the current time folded against t, the result is
// t / (k & 0x7F) with sign taken from bit 7 of k — net effect, t ± t/[1..127].
//
// This folds the CRC down with xor8 rather than reading raw CRC bytes
// directly, so that a divisor of 0 (from k&0x7F == 0) is visible and
// bumped to 1 before it's used, never divided by.
//
// now is an explicit monotonic-nanosecond seed rather than a direct call
// to time.Now() so tests can pin exact vectors; worker.now supplies the
// live clock in production.
func jitter(now int64, t time.Duration) time.Duration {
	var nowBuf, tBuf [8]byte
	binary.LittleEndian.PutUint64(nowBuf[:], uint64(now))
	binary.LittleEndian.PutUint64(tBuf[:], uint64(t))

	k := crc32.ChecksumIEEE(nowBuf[:]) ^ crc32.ChecksumIEEE(tBuf[:])
	k = xor8(k)

	div := k & 0x7f
	if div == 0 {
		div = 1
	}
	delta := t / time.Duration(div)
	if k&0x80 != 0 {
		delta = -delta
	}
	return delta
}

// xor8 folds a 32-bit value down to its low byte by XORing all four
// bytes together, so only bits 0-7 of the result are ever meaningful.
func xor8(v uint32) uint32 {
	return uint32(byte(v) ^ byte(v>>8) ^ byte(v>>16) ^ byte(v>>24))
}

// saturate applies an initial or doubled retransmission interval, t,
// against a server's MaxTimeout: if the policy caps the timeout and t
// exceeds it, t is replaced with MaxTimeout minus its own jitter rather
// than t's — capping happens before jitter is reapplied, so an overflowing
// doubled interval can never escape the cap through jitter alone.
func saturate(now int64, t time.Duration, maxTimeout time.Duration) time.Duration {
	if maxTimeout > 0 && t > maxTimeout {
		return maxTimeout - jitter(now, maxTimeout)
	}
	return t
}

// sendNew resolves the next enabled server at or after q.serverIndex,
// attaches q to that address family's socket pool if it isn't already
// there, signs the packet for that server's secret, computes a fresh
// initial retransmission interval, and sends. Retry counters are reset
// unconditionally: each server gets its own retry budget, whether this is
// the first attempt or a failover. Used internally by handleTimeout and
// failover, where every error — including ErrNoServer/ErrAgain — is
// inherently post-enqueue and belongs on the callback.
func (w *worker) sendNew(q *Query) error {
	if err := w.prepareSlot(q); err != nil {
		return err
	}
	return w.signAndSend(q)
}

// prepareSlot is the selection-and-allocation half of sendNew: picking the
// next enabled server and giving q a packet-ID slot in that family's
// socket pool. Nothing here has side effects visible outside this worker
// until allocSlot/attachSlot succeed, so a failure here leaves q exactly
// as it was before the call — which is what lets handleNewQuery surface
// ErrNoServer/ErrAgain from this step synchronously to Query's caller,
// per the enqueue-time/post-enqueue split in the error taxonomy.
func (w *worker) prepareSlot(q *Query) error {
	entry, idx, err := w.client.registry.nextEnabled(q.serverIndex)
	if err != nil {
		return err
	}
	q.serverIndex = idx

	pool := w.poolFor(entry.addr)
	if q.skt == nil || q.skt.pool != pool {
		w.detachSlot(q)
		skt, id, err := w.allocSlot(pool, q)
		if err != nil {
			return err
		}
		if q.idIsAuto {
			q.buf[1] = id
		}
		w.attachSlot(skt, id, q)
	}
	return nil
}

// signAndSend is sendNew's post-allocation half: sign, compute the initial
// retransmission interval, and write to the wire. Errors here (a signing
// failure or a failed write) arrive at the caller via the completion
// callback, never synchronously, since by this point the query has
// already been accepted and given a slot.
func (w *worker) signAndSend(q *Query) error {
	entry, ok := w.client.registry.at(q.serverIndex)
	if !ok {
		return ErrNoServer
	}

	if err := wire.Sign(q.buf, entry.secret, wire.IsAccessRequest(q.buf)); err != nil {
		return err
	}

	now := w.now().UnixNano()
	q.retransTime = saturate(now, entry.policy.InitialTimeout-jitter(now, entry.policy.InitialTimeout), entry.policy.MaxTimeout)
	q.retransCount = 0
	q.retransDuration = 0

	return w.send(q, &entry)
}

// send arms q's timer for q.retransTime and writes the signed packet to
// the wire. A short write or OS error cancels the timer (nothing was
// actually sent, so nothing should time out) and is returned wrapped in
// OSError.
func (w *worker) send(q *Query, entry *registryEntry) error {
	w.wheel.Arm(q, w.now().Add(q.retransTime))
	n, err := q.skt.conn.WriteToUDP(q.buf, entry.addr)
	if err != nil {
		w.wheel.Cancel(q)
		return &OSError{Err: err}
	}
	if n != len(q.buf) {
		w.wheel.Cancel(q)
		return &OSError{Err: errShortWrite}
	}
	w.client.stats.incSent()
	return nil
}

// handleTimeout runs the retransmission state machine for one fired
// timer: increment counters, decide retry-same-server vs failover vs
// give up, per spec (see SPEC_FULL.md §4.4).
func (w *worker) handleTimeout(q *Query) {
	entry, ok := w.client.registry.at(q.serverIndex)
	if !ok {
		w.completeQuery(q, nil, ErrNoServer)
		return
	}

	q.retransCount++
	q.retransDuration += q.retransTime

	if entry.policy.MaxRetries > 0 && q.retransCount >= entry.policy.MaxRetries {
		w.client.stats.incFailover()
		w.failover(q)
		return
	}
	if entry.policy.MaxDuration > 0 && q.retransDuration >= entry.policy.MaxDuration {
		w.client.stats.incFailover()
		w.failover(q)
		return
	}

	now := w.now().UnixNano()
	cur := q.retransTime
	if entry.policy.MaxTimeout > 0 && cur > entry.policy.MaxTimeout {
		cur = entry.policy.MaxTimeout
	}
	newTime := saturate(now, 2*cur-jitter(now, cur), entry.policy.MaxTimeout)
	if entry.policy.MaxDuration > 0 && q.retransDuration+newTime >= entry.policy.MaxDuration {
		newTime = entry.policy.MaxDuration - q.retransDuration
		if newTime < entry.policy.InitialTimeout {
			w.client.stats.incFailover()
			w.failover(q)
			return
		}
	}
	q.retransTime = newTime
	w.client.stats.incRetry()

	if err := wire.Sign(q.buf, entry.secret, wire.IsAccessRequest(q.buf)); err != nil {
		w.completeQuery(q, nil, err)
		return
	}
	if err := w.send(q, &entry); err != nil {
		w.client.stats.incFailover()
		w.failover(q)
	}
}

// failover advances past the server the query just gave up on and keeps
// trying sendNew against each subsequent enabled server until one accepts
// the query or the registry is exhausted, at which point the query
// completes with ErrTimedOut.
func (w *worker) failover(q *Query) {
	for {
		q.serverIndex++
		err := w.sendNew(q)
		if err == nil {
			return
		}
		if err == ErrNoServer {
			w.client.stats.incTimeout()
			w.completeQuery(q, nil, ErrTimedOut)
			return
		}
		// Any other error (OS send failure, socket-pool exhaustion) —
		// try the next server rather than giving up immediately.
	}
}

var errShortWrite = shortWriteError{}

type shortWriteError struct{}

func (shortWriteError) Error() string { return "radiusclient: short write to udp socket" }
