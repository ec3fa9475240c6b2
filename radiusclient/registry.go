package radiusclient

import (
	"net"
	"sync"
)

// ServerSettings describes one RADIUS server as supplied to AddServer.
type ServerSettings struct {
	Addr   *net.UDPAddr
	Secret []byte
	Policy RetransmitPolicy
}

// registryEntry is the live, internal form of a ServerSettings: a
// snapshot copy of one is handed to workers so they never read registry
// memory without holding the registry mutex.
type registryEntry struct {
	addr    *net.UDPAddr
	secret  []byte
	policy  RetransmitPolicy
	enabled bool
}

// registry is the client's single piece of cross-worker shared mutable
// state: an ordered list of servers guarded by one mutex. Every other
// piece of per-worker state (socket pools, slot tables, timers) is
// touched only from its owning worker's goroutine and needs no lock.
type registry struct {
	mu      sync.RWMutex
	entries []*registryEntry
	max     int
}

func newRegistry(max int) *registry {
	return &registry{max: max}
}

// add appends a new, enabled server entry. Capacity is checked against
// the rounded ServersMax computed at client creation.
func (r *registry) add(s ServerSettings) error {
	if s.Addr == nil {
		return ErrInvalidArg
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.max {
		return ErrNoCapacity
	}
	r.entries = append(r.entries, &registryEntry{
		addr:    s.Addr,
		secret:  s.Secret,
		policy:  s.Policy,
		enabled: true,
	})
	return nil
}

// removeAt removes the entry at index idx, preserving the order of the
// remaining entries. A Query's stored server index into this slice may
// now point past the end, or at a different server entirely; send_new
// re-validates the index on every use rather than caching a pointer.
func (r *registry) removeAt(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.entries) {
		return
	}
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
}

// removeByAddr removes the first entry whose address matches addr
// (IP+port), if any.
func (r *registry) removeByAddr(addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if addrEqual(e.addr, addr) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// setEnabled toggles an entry's enabled flag without disturbing order.
func (r *registry) setEnabled(idx int, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.entries) {
		return
	}
	r.entries[idx].enabled = enabled
}

// nextEnabled scans forward from idx (inclusive) for the first enabled
// entry, returning a snapshot copy and its index. ErrNoServer means the
// registry is empty or every remaining entry from idx onward is disabled.
func (r *registry) nextEnabled(idx int) (registryEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := idx; i < len(r.entries); i++ {
		if r.entries[i].enabled {
			return *r.entries[i], i, nil
		}
	}
	return registryEntry{}, 0, ErrNoServer
}

// at returns a snapshot copy of the entry at idx, used by the receiver to
// resolve the server a query is currently waiting on without re-running
// the enabled-skip search (the receiver must match the exact server the
// query was sent to, not "the next available one").
func (r *registry) at(idx int) (registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.entries) {
		return registryEntry{}, false
	}
	return *r.entries[idx], true
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
