package gateway

import (
	"context"
	"time"
)

// EventType identifies an event surfaced by the underlying transport.
type EventType string

const (
	// EventQR carries an ephemeral code that must be scanned out-of-band
	// to authenticate the session.
	EventQR EventType = "qr"
	// EventAuthenticated fires once the scanned code is accepted.
	EventAuthenticated EventType = "authenticated"
	// EventReady fires when the connection is fully usable.
	EventReady EventType = "ready"
	// EventMessage carries one inbound message.
	EventMessage EventType = "message"
	// EventAck reports delivery progress for an outbound message.
	EventAck EventType = "ack"
	// EventDisconnected fires when the connection is lost or torn down.
	EventDisconnected EventType = "disconnected"
	// EventError reports a transport failure.
	EventError EventType = "error"
)

// Identity describes the external account behind a connected session.
type Identity struct {
	PushName string `json:"pushname"`
	UserID   string `json:"wid"`
	Platform string `json:"platform"`
}

// InboundMessage is one message received from the external network.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	HasMedia  bool      `json:"hasMedia"`
	Timestamp time.Time `json:"timestamp"`
}

// Media is the metadata of an attachment, fetched on demand.
type Media struct {
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
}

// Ack levels mirror the transport's delivery receipts.
const (
	AckServer = 1
	AckDevice = 2
	AckRead   = 3
)

type AckEvent struct {
	MessageID string `json:"id"`
	Level     int    `json:"ack"`
}

// Event is the gateway's internal event vocabulary. Exactly one payload
// field is set, according to Type.
type Event struct {
	Type     EventType
	QRCode   string
	Identity *Identity
	Message  *InboundMessage
	Ack      *AckEvent
	Reason   string
	Err      error
}

// Gateway adapts the single live external network connection. Events are
// delivered in the order the transport emits them; the channel is closed
// when the connection is gone for good.
type Gateway interface {
	Events() <-chan Event
	SendText(ctx context.Context, to, body string) error
	FetchMedia(ctx context.Context, messageID string) (*Media, error)
	Logout(ctx context.Context) error
	Close() error
}

// Factory creates a fresh Gateway and begins its handshake. The session
// lifecycle manager calls it once per start attempt.
type Factory func(ctx context.Context) (Gateway, error)
