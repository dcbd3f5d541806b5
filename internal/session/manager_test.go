package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/botdesk/bridge-server-go/internal/errors"
	"github.com/botdesk/bridge-server-go/internal/gateway"
)

type fakeGateway struct {
	events chan gateway.Event

	mu        sync.Mutex
	closeOnce sync.Once
	sent      []string
	loggedOut bool
	closed    bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(chan gateway.Event, 10)}
}

func (f *fakeGateway) Events() <-chan gateway.Event { return f.events }

func (f *fakeGateway) SendText(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+": "+body)
	return nil
}

func (f *fakeGateway) FetchMedia(ctx context.Context, messageID string) (*gateway.Media, error) {
	return &gateway.Media{Mimetype: "image/jpeg"}, nil
}

func (f *fakeGateway) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.loggedOut = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeGateway) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeGateway) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeGateway) isLoggedOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedOut
}

func singleGatewayFactory(gw *fakeGateway) gateway.Factory {
	return func(ctx context.Context) (gateway.Gateway, error) {
		return gw, nil
	}
}

func TestManagerLifecycle(t *testing.T) {
	t.Run("progresses through qr to connected", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		snap, err := m.Start(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusInitializing, snap.Status)

		gw.events <- gateway.Event{Type: gateway.EventQR, QRCode: "qr-payload"}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusQRReady
		}, time.Second, 5*time.Millisecond)

		snap = m.Status()
		require.NotNil(t, snap.QRCode)
		assert.Equal(t, "qr-payload", *snap.QRCode)
		assert.Nil(t, snap.Identity)

		gw.events <- gateway.Event{Type: gateway.EventAuthenticated}
		gw.events <- gateway.Event{Type: gateway.EventReady, Identity: &gateway.Identity{
			PushName: "Support",
			UserID:   "15551234567",
		}}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusConnected
		}, time.Second, 5*time.Millisecond)

		snap = m.Status()
		assert.Nil(t, snap.QRCode)
		require.NotNil(t, snap.Identity)
		assert.Equal(t, "Support", snap.Identity.PushName)

		require.NoError(t, m.AwaitConnected(context.Background()))

		identity, err := m.Identity()
		require.NoError(t, err)
		assert.Equal(t, "15551234567", identity.UserID)
	})

	t.Run("start is idempotent while a session is live", func(t *testing.T) {
		var calls int
		gw := newFakeGateway()
		factory := func(ctx context.Context) (gateway.Gateway, error) {
			calls++
			return gw, nil
		}
		m := NewManager(factory, nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)

		snap, err := m.Start(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusInitializing, snap.Status)
		assert.Equal(t, 1, calls)
	})

	t.Run("concurrent starts spawn a single gateway", func(t *testing.T) {
		var mu sync.Mutex
		var calls int
		factory := func(ctx context.Context) (gateway.Gateway, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			return newFakeGateway(), nil
		}
		m := NewManager(factory, nil, time.Second)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := m.Start(context.Background())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, calls)
	})

	t.Run("failed factory resets to disconnected", func(t *testing.T) {
		factory := func(ctx context.Context) (gateway.Gateway, error) {
			return nil, errors.New("bridge unreachable")
		}
		m := NewManager(factory, nil, time.Second)

		_, err := m.Start(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConnection))
		assert.Equal(t, StatusDisconnected, m.Status().Status)

		// The failure does not wedge the machine; a new start is allowed.
		gw := newFakeGateway()
		m.factory = singleGatewayFactory(gw)
		snap, err := m.Start(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusInitializing, snap.Status)
	})
}

func TestManagerLogout(t *testing.T) {
	t.Run("tears down a connected session", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.events <- gateway.Event{Type: gateway.EventReady, Identity: &gateway.Identity{UserID: "1"}}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusConnected
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, m.Logout(context.Background()))
		assert.Equal(t, StatusDisconnected, m.Status().Status)
		assert.True(t, gw.isLoggedOut())

		_, err = m.Identity()
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotConnected))
	})

	t.Run("is a no-op when already disconnected", func(t *testing.T) {
		m := NewManager(singleGatewayFactory(newFakeGateway()), nil, time.Second)
		require.NoError(t, m.Logout(context.Background()))
		assert.Equal(t, StatusDisconnected, m.Status().Status)
	})

	t.Run("cancels an in-flight initialization", func(t *testing.T) {
		gw := newFakeGateway()
		release := make(chan struct{})
		factory := func(ctx context.Context) (gateway.Gateway, error) {
			<-release
			return gw, nil
		}
		m := NewManager(factory, nil, time.Second)

		done := make(chan Snapshot, 1)
		go func() {
			snap, _ := m.Start(context.Background())
			done <- snap
		}()

		require.Eventually(t, func() bool {
			return m.Status().Status == StatusInitializing
		}, time.Second, time.Millisecond)

		require.NoError(t, m.Logout(context.Background()))
		close(release)

		select {
		case snap := <-done:
			assert.Equal(t, StatusDisconnected, snap.Status)
		case <-time.After(time.Second):
			t.Fatal("start did not return")
		}

		assert.Equal(t, StatusDisconnected, m.Status().Status)
		require.Eventually(t, gw.isClosed, time.Second, time.Millisecond)
	})

	t.Run("interrupts qr wait", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.events <- gateway.Event{Type: gateway.EventQR, QRCode: "qr-payload"}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusQRReady
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, m.Logout(context.Background()))
		snap := m.Status()
		assert.Equal(t, StatusDisconnected, snap.Status)
		assert.Nil(t, snap.QRCode)
	})
}

func TestManagerDisconnect(t *testing.T) {
	t.Run("transport disconnect resets state", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.events <- gateway.Event{Type: gateway.EventReady, Identity: &gateway.Identity{UserID: "1"}}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusConnected
		}, time.Second, 5*time.Millisecond)

		gw.events <- gateway.Event{Type: gateway.EventDisconnected, Reason: "phone offline"}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusDisconnected
		}, time.Second, 5*time.Millisecond)

		require.Eventually(t, gw.isClosed, time.Second, time.Millisecond)
	})

	t.Run("stream end without disconnect event resets state", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.Close()

		require.Eventually(t, func() bool {
			return m.Status().Status == StatusDisconnected
		}, time.Second, 5*time.Millisecond)
	})
}

func TestManagerSendText(t *testing.T) {
	t.Run("rejects send while not connected", func(t *testing.T) {
		m := NewManager(singleGatewayFactory(newFakeGateway()), nil, time.Second)
		err := m.SendText(context.Background(), "15557654321@c.us", "hello")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotConnected))
	})

	t.Run("relays send while connected", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.events <- gateway.Event{Type: gateway.EventReady, Identity: &gateway.Identity{UserID: "1"}}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusConnected
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, m.SendText(context.Background(), "15557654321@c.us", "hello"))

		gw.mu.Lock()
		defer gw.mu.Unlock()
		require.Len(t, gw.sent, 1)
		assert.Equal(t, "15557654321@c.us: hello", gw.sent[0])
	})
}

func TestManagerAwaitConnected(t *testing.T) {
	t.Run("returns immediately when connected", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.events <- gateway.Event{Type: gateway.EventReady, Identity: &gateway.Identity{UserID: "1"}}
		require.Eventually(t, func() bool {
			return m.Status().Status == StatusConnected
		}, time.Second, 5*time.Millisecond)

		assert.NoError(t, m.AwaitConnected(context.Background()))
	})

	t.Run("times out when the handshake stalls", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, 20*time.Millisecond)

		_, err := m.Start(context.Background())
		require.NoError(t, err)

		err = m.AwaitConnected(context.Background())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotInitialized))
	})

	t.Run("fails without a start attempt", func(t *testing.T) {
		m := NewManager(singleGatewayFactory(newFakeGateway()), nil, time.Second)
		err := m.AwaitConnected(context.Background())
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotInitialized))
	})
}

func TestManagerInboundHandler(t *testing.T) {
	t.Run("delivers inbound messages to the registered handler", func(t *testing.T) {
		gw := newFakeGateway()
		m := NewManager(singleGatewayFactory(gw), nil, time.Second)

		received := make(chan gateway.InboundMessage, 1)
		m.SetInboundHandler(func(ctx context.Context, msg gateway.InboundMessage) {
			received <- msg
		})

		_, err := m.Start(context.Background())
		require.NoError(t, err)
		gw.events <- gateway.Event{Type: gateway.EventReady, Identity: &gateway.Identity{UserID: "1"}}
		gw.events <- gateway.Event{Type: gateway.EventMessage, Message: &gateway.InboundMessage{
			ID:   "msg-1",
			From: "15557654321@c.us",
			Body: "hi",
		}}

		select {
		case msg := <-received:
			assert.Equal(t, "msg-1", msg.ID)
			assert.Equal(t, "hi", msg.Body)
		case <-time.After(time.Second):
			t.Fatal("inbound handler was not called")
		}
	})
}
