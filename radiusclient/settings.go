package radiusclient

import "time"

// allocGranularity is the rounding unit applied to ServersMax at client
// creation time, matching the original design's fixed allocation chunking
// for the server table.
const allocGranularity = 4

// Settings holds the immutable, client-wide configuration supplied to
// NewClient. All fields are validated and defaulted once, at creation
// time; nothing here changes for the lifetime of a Client.
type Settings struct {
	// ServersMax bounds how many entries AddServer will accept. Rounded
	// up to a multiple of 4.
	ServersMax int

	// QueueMaxPerThread bounds each worker's mailbox: the number of
	// in-flight Query/teardown messages that may be pending delivery to
	// that worker at once.
	QueueMaxPerThread int

	// SocketsMinPerThread and SocketsMaxPerThread bound the per-(worker,
	// address family) socket pool size. SocketsMinPerThread defaults to
	// 1 if zero; SocketsMaxPerThread is raised to SocketsMinPerThread if
	// given smaller.
	SocketsMinPerThread int
	SocketsMaxPerThread int

	// SocketRcvBuf and SocketSndBuf size each socket's OS receive/send
	// buffers (SO_RCVBUF/SO_SNDBUF equivalents via net.UDPConn). Zero
	// leaves the OS default in place.
	SocketRcvBuf int
	SocketSndBuf int

	// NASIdentifier is appended as a NAS-Identifier attribute to every
	// Access-Request. Must be at most 253 bytes.
	NASIdentifier []byte
}

// DefaultSettings returns sane defaults for a small single-NAS deployment.
func DefaultSettings() Settings {
	return Settings{
		ServersMax:          4,
		QueueMaxPerThread:   256,
		SocketsMinPerThread: 1,
		SocketsMaxPerThread: 4,
		SocketRcvBuf:        128 * 1024,
		SocketSndBuf:        128 * 1024,
	}
}

func (s *Settings) normalize() error {
	if len(s.NASIdentifier) > 253 {
		return ErrInvalidArg
	}
	if s.SocketsMinPerThread == 0 {
		s.SocketsMinPerThread = 1
	}
	if s.SocketsMaxPerThread < s.SocketsMinPerThread {
		s.SocketsMaxPerThread = s.SocketsMinPerThread
	}
	if s.QueueMaxPerThread <= 0 {
		s.QueueMaxPerThread = 256
	}
	s.ServersMax += allocGranularity - 1
	s.ServersMax -= s.ServersMax % allocGranularity
	if s.ServersMax == 0 {
		s.ServersMax = allocGranularity
	}
	return nil
}

// RetransmitPolicy controls one server's retry behavior. Zero values for
// MaxTimeout, MaxDuration, and MaxRetries mean "unlimited", matching the
// original design's 0 = unlimited convention.
type RetransmitPolicy struct {
	InitialTimeout time.Duration
	MaxTimeout     time.Duration
	MaxDuration    time.Duration
	MaxRetries     int
}

// DefaultRetransmitPolicy mirrors common RADIUS client defaults: a 2s
// initial timeout doubling up to 16s, no overall duration cap, and at
// most 3 retries before failing over.
func DefaultRetransmitPolicy() RetransmitPolicy {
	return RetransmitPolicy{
		InitialTimeout: 2 * time.Second,
		MaxTimeout:     16 * time.Second,
		MaxDuration:    0,
		MaxRetries:     3,
	}
}
