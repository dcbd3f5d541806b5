package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/gateway"
	"github.com/botdesk/bridge-server-go/internal/sse"
)

// Status is the lifecycle state of the bridged session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusInitializing Status = "initializing"
	StatusQRReady      Status = "qr_ready"
	StatusConnected    Status = "connected"
)

// Snapshot is a consistent read of the session state. QRCode is present only
// in qr_ready, Identity only in connected.
type Snapshot struct {
	Status   Status            `json:"status"`
	QRCode   *string           `json:"qrCode,omitempty"`
	Identity *gateway.Identity `json:"identity,omitempty"`
}

// Publisher is the slice of the SSE broker the manager needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

// InboundHandler receives each inbound message event from the gateway.
// Handlers run on the event loop goroutine: events from the same connection
// are delivered in order, so handlers should not block on unbounded work.
type InboundHandler func(ctx context.Context, msg gateway.InboundMessage)

// Manager owns the single underlying connection handle and the state machine
// around it. All mutations go through the manager; everything else reads
// snapshots.
type Manager struct {
	factory      gateway.Factory
	publisher    Publisher
	startTimeout time.Duration

	mu        sync.Mutex
	status    Status
	qrCode    string
	identity  *gateway.Identity
	gw        gateway.Gateway
	connected chan struct{}
	inbound   InboundHandler
}

func NewManager(factory gateway.Factory, publisher Publisher, startTimeout time.Duration) *Manager {
	return &Manager{
		factory:      factory,
		publisher:    publisher,
		startTimeout: startTimeout,
		status:       StatusDisconnected,
	}
}

// SetInboundHandler registers the consumer of inbound message events. Must be
// wired before the first Start.
func (m *Manager) SetInboundHandler(h InboundHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = h
}

// Start begins the external handshake. It is idempotent: while the session is
// initializing, waiting for a scan, or connected, it returns the current
// snapshot without touching the connection, so concurrent callers can never
// spawn a second handle.
func (m *Manager) Start(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	switch m.status {
	case StatusInitializing, StatusQRReady, StatusConnected:
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	m.status = StatusInitializing
	m.qrCode = ""
	m.identity = nil
	m.connected = make(chan struct{})
	m.mu.Unlock()

	log.Info().Msg("session initializing")

	gw, err := m.factory(ctx)
	if err != nil {
		m.mu.Lock()
		m.status = StatusDisconnected
		m.gw = nil
		m.mu.Unlock()

		log.Error().Err(err).Msg("failed to create gateway")
		m.publish(ctx, sse.EventError, map[string]string{"message": err.Error()})
		return Snapshot{Status: StatusDisconnected}, apperrors.ConnectionFailed(err)
	}

	m.mu.Lock()
	if m.status != StatusInitializing {
		// Logout won the race while the handshake was being set up.
		m.mu.Unlock()
		gw.Close()
		return Snapshot{Status: StatusDisconnected}, nil
	}
	m.gw = gw
	snap := m.snapshotLocked()
	m.mu.Unlock()

	go m.eventLoop(gw)

	return snap, nil
}

// Status returns a snapshot of the session state. Safe from any goroutine.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Identity returns the connected account's identity.
func (m *Manager) Identity() (*gateway.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusConnected || m.identity == nil {
		return nil, apperrors.NotConnected()
	}
	identity := *m.identity
	return &identity, nil
}

// Logout tears down the live connection, if any. It is the cancellation path:
// safe to call mid-initialization, and always leaves the machine disconnected.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusDisconnected && m.gw == nil {
		m.mu.Unlock()
		return nil
	}
	gw := m.gw
	m.gw = nil
	m.status = StatusDisconnected
	m.qrCode = ""
	m.identity = nil
	m.mu.Unlock()

	if gw != nil {
		if err := gw.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("gateway logout failed")
		}
	}

	log.Info().Msg("session logged out")
	m.publish(ctx, sse.EventDisconnected, map[string]string{"reason": "logout"})
	return nil
}

// AwaitConnected blocks until the session reaches connected, bounded by the
// configured start timeout.
func (m *Manager) AwaitConnected(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	ch := m.connected
	m.mu.Unlock()

	if ch == nil {
		return apperrors.NotInitialized()
	}

	timer := time.NewTimer(m.startTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return apperrors.NotInitialized().WithCause(ctx.Err())
	case <-timer.C:
		return apperrors.NotInitialized()
	}
}

// SendText relays an outbound message through the owned connection handle.
func (m *Manager) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	gw := m.gw
	connected := m.status == StatusConnected
	m.mu.Unlock()

	if !connected || gw == nil {
		return apperrors.NotConnected()
	}
	return gw.SendText(ctx, to, body)
}

// FetchMedia retrieves attachment metadata for an inbound message.
func (m *Manager) FetchMedia(ctx context.Context, messageID string) (*gateway.Media, error) {
	m.mu.Lock()
	gw := m.gw
	m.mu.Unlock()

	if gw == nil {
		return nil, apperrors.NotConnected()
	}
	return gw.FetchMedia(ctx, messageID)
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{Status: m.status}
	if m.status == StatusQRReady && m.qrCode != "" {
		qr := m.qrCode
		snap.QRCode = &qr
	}
	if m.status == StatusConnected && m.identity != nil {
		identity := *m.identity
		snap.Identity = &identity
	}
	return snap
}

// eventLoop consumes one gateway's events until its channel closes. Checks
// against m.gw keep a stale loop from mutating state after a logout swapped
// the handle out.
func (m *Manager) eventLoop(gw gateway.Gateway) {
	ctx := context.Background()

	for ev := range gw.Events() {
		switch ev.Type {
		case gateway.EventQR:
			m.mu.Lock()
			if m.gw != gw {
				m.mu.Unlock()
				return
			}
			m.status = StatusQRReady
			m.qrCode = ev.QRCode
			m.mu.Unlock()

			log.Info().Msg("qr code received")
			m.publish(ctx, sse.EventQRReady, map[string]string{"qr": ev.QRCode})

		case gateway.EventAuthenticated:
			log.Info().Msg("session authenticated")

		case gateway.EventReady:
			m.mu.Lock()
			if m.gw != gw {
				m.mu.Unlock()
				return
			}
			m.status = StatusConnected
			m.qrCode = ""
			m.identity = ev.Identity
			if m.connected != nil {
				select {
				case <-m.connected:
				default:
					close(m.connected)
				}
			}
			m.mu.Unlock()

			log.Info().Msg("session connected")
			m.publish(ctx, sse.EventConnected, ev.Identity)

		case gateway.EventMessage:
			if ev.Message == nil {
				continue
			}
			m.mu.Lock()
			handler := m.inbound
			m.mu.Unlock()
			if handler != nil {
				handler(ctx, *ev.Message)
			}

		case gateway.EventAck:
			if ev.Ack != nil && ev.Ack.Level == gateway.AckRead {
				log.Debug().Str("messageId", ev.Ack.MessageID).Msg("message read by recipient")
			}

		case gateway.EventDisconnected:
			m.mu.Lock()
			if m.gw != gw {
				m.mu.Unlock()
				return
			}
			m.gw = nil
			m.status = StatusDisconnected
			m.qrCode = ""
			m.identity = nil
			m.mu.Unlock()

			log.Warn().Str("reason", ev.Reason).Msg("session disconnected")
			m.publish(ctx, sse.EventDisconnected, map[string]string{"reason": ev.Reason})
			gw.Close()
			return

		case gateway.EventError:
			m.mu.Lock()
			initializing := m.gw == gw && m.status != StatusConnected
			if initializing {
				m.gw = nil
				m.status = StatusDisconnected
				m.qrCode = ""
				m.identity = nil
			}
			m.mu.Unlock()

			log.Error().Err(ev.Err).Msg("gateway error")
			m.publish(ctx, sse.EventError, map[string]string{"message": errString(ev.Err)})
			if initializing {
				gw.Close()
				return
			}
		}
	}

	// Stream ended without a disconnect event.
	m.mu.Lock()
	if m.gw == gw {
		m.gw = nil
		m.status = StatusDisconnected
		m.qrCode = ""
		m.identity = nil
		m.mu.Unlock()
		m.publish(ctx, sse.EventDisconnected, map[string]string{"reason": "event stream ended"})
		return
	}
	m.mu.Unlock()
}

func (m *Manager) publish(ctx context.Context, eventType string, data any) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event")
		return
	}
	if err := m.publisher.Publish(ctx, sse.TopicSession, sse.Event{Type: eventType, Data: payload}); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
