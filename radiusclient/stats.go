package radiusclient

import "sync/atomic"

// engineStats holds the engine's own lock-free counters. It always
// exists, whether or not a Prometheus collector (internal/metrics) reads
// from the client; Stats() reads from here directly.
type engineStats struct {
	sent               uint64
	retries            uint64
	failovers          uint64
	timeouts           uint64
	completions        uint64
	degradedDeliveries uint64
}

func (s *engineStats) incSent()        { atomic.AddUint64(&s.sent, 1) }
func (s *engineStats) incRetry()       { atomic.AddUint64(&s.retries, 1) }
func (s *engineStats) incFailover()    { atomic.AddUint64(&s.failovers, 1) }
func (s *engineStats) incTimeout()     { atomic.AddUint64(&s.timeouts, 1) }
func (s *engineStats) incCompletion()  { atomic.AddUint64(&s.completions, 1) }
func (s *engineStats) incDegraded()    { atomic.AddUint64(&s.degradedDeliveries, 1) }

// Stats is a point-in-time snapshot of the engine's activity counters,
// returned by Client.Stats.
type Stats struct {
	QueriesSent        uint64
	Retries            uint64
	Failovers          uint64
	Timeouts           uint64
	Completions        uint64
	DegradedDeliveries uint64
}

// Stats returns a snapshot of the client's activity counters.
func (c *Client) Stats() Stats {
	return Stats{
		QueriesSent:        atomic.LoadUint64(&c.stats.sent),
		Retries:            atomic.LoadUint64(&c.stats.retries),
		Failovers:          atomic.LoadUint64(&c.stats.failovers),
		Timeouts:           atomic.LoadUint64(&c.stats.timeouts),
		Completions:        atomic.LoadUint64(&c.stats.completions),
		DegradedDeliveries: atomic.LoadUint64(&c.stats.degradedDeliveries),
	}
}
