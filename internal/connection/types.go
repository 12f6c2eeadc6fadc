package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyClosed  = errors.New("already closed")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrInvalidTopic   = errors.New("invalid topic")
)

// State is the transport lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Outbound message kinds.
const (
	KindSubscribe   = "subscribe"
	KindUnsubscribe = "unsubscribe"
	KindPing        = "ping"
)

// Envelope is the wire frame used in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TopicPayload is the payload of subscribe and unsubscribe frames.
type TopicPayload struct {
	Topic string `json:"topic"`
}

// QueuedMessage is an outbound message held while the transport is not open.
type QueuedMessage struct {
	Kind       string
	Payload    any
	EnqueuedAt time.Time
}

// ReconnectInfo is the data of a reconnecting event.
type ReconnectInfo struct {
	Attempt int
	Max     int
	Delay   time.Duration
}

// Stats is a read-only snapshot of the manager.
type Stats struct {
	Connected            bool
	State                State
	ReconnectAttempts    int
	MaxReconnectAttempts int
	Exhausted            bool
	PendingMessages      int
	Subscriptions        []string
	LastConnected        time.Time
	LastDisconnected     time.Time
	TotalErrors          int64
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                   string        // WebSocket URL of the occupancy feed
	ClientID              string        // Sent as X-Client-Id; generated when empty
	BaseReconnectInterval time.Duration // First backoff delay
	MaxReconnectDelay     time.Duration // Backoff cap
	MaxReconnectAttempts  int           // Automatic retries before giving up
	ReconnectJitter       float64       // Extra random delay as a fraction of the backoff (0 disables)
	ForceReconnectDelay   time.Duration // Delay before ForceReconnect dials
	HeartbeatInterval     time.Duration // Ping period while open
	DialTimeout           time.Duration // Handshake timeout
	WriteTimeout          time.Duration // Write deadline for sends
	ReadLimit             int64         // Max inbound frame size in bytes (0 = unlimited)
	MaxPendingMessages    int           // Queue capacity; oldest dropped beyond it
}

// DefaultManagerConfig returns the production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseReconnectInterval: 3 * time.Second,
		MaxReconnectDelay:     30 * time.Second,
		MaxReconnectAttempts:  5,
		ForceReconnectDelay:   1 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		DialTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Second,
		ReadLimit:             1 << 20,
		MaxPendingMessages:    1000,
	}
}

// encodeEnvelope marshals an outbound frame. A nil payload is sent as {}.
func encodeEnvelope(kind string, payload any) ([]byte, error) {
	raw := json.RawMessage(`{}`)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = data
	}

	return json.Marshal(Envelope{Type: kind, Payload: raw})
}

// decodeEnvelope parses an inbound frame. Frames that are not JSON objects
// or that carry no type are malformed.
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return env, nil
}
