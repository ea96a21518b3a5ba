package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrMessageTooLarge = errors.New("message exceeds size limit")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps a complete inbound message with its receive time.
type TimestampedMessage struct {
	Data       []byte    // Reassembled message bytes (all fragments)
	ReceivedAt time.Time // Local time the final fragment was read
}

// RawMessage is a frame handed from the Manager to the router.
type RawMessage struct {
	Data       []byte
	SessionID  string // Connection session the frame arrived on
	ReceivedAt time.Time
}

// State is the lifecycle state of the push connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// StatusChange describes one state transition.
type StatusChange struct {
	State     State
	Previous  State
	SessionID string        // Set while Connected
	Err       error         // Transport error that caused the transition, if any
	Attempt   int           // Reconnect attempt number when a retry is scheduled
	RetryIn   time.Duration // Delay until the next reconnect attempt, 0 if none scheduled
	At        time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://universalis.app/api/ws)
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // Dial handshake deadline
	BufferSize       int           // Message channel buffer size
	MaxMessageSize   int64         // Max reassembled message size in bytes
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       1000,
		MaxMessageSize:   4 << 20,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client            ClientConfig  // Settings for each underlying connection; URL is the provider endpoint
	ReconnectBaseWait time.Duration // First reconnect delay
	ReconnectMaxWait  time.Duration // Backoff cap
	MessageBufferSize int           // Buffer size for output message channel
	StatusBufferSize  int           // Per-watcher status channel buffer
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  30 * time.Second,
		MessageBufferSize: 1000,
		StatusBufferSize:  16,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State             State
	SessionID         string
	Subscriptions     int
	Connects          int64 // Successful connects
	ConnectFailures   int64
	Drops             int64 // Unsolicited disconnects
	FramesReceived    int64
	SubscribesSent    int64
	UnsubscribesSent  int64
	ReconnectAttempts int
}

// Backoff returns the reconnect delay for a zero-based attempt number:
// base, 2*base, 4*base, ... capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	wait := base
	for i := 0; i < attempt; i++ {
		if max > 0 && wait >= max {
			break
		}
		wait *= 2
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}
