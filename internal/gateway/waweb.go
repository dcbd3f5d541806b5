package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/config"
)

const eventBufferSize = 100

// WAWebClient drives a WhatsApp Web bridge node over HTTP. The node owns the
// actual protocol session; this client starts it, consumes its event stream
// and relays sends. One client maps to one underlying connection.
type WAWebClient struct {
	baseURL string
	http    *http.Client
	events  chan Event
	cancel  context.CancelFunc
}

// DialWAWeb starts a session on the bridge node and begins consuming its
// event stream. It fails if the node is unreachable or refuses to start.
func DialWAWeb(ctx context.Context, baseURL string) (*WAWebClient, error) {
	c := &WAWebClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: config.BridgeRequestTimeout},
		events:  make(chan Event, eventBufferSize),
	}

	if err := c.post(ctx, "/session/start", nil); err != nil {
		return nil, fmt.Errorf("start bridge session: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// The stream request must not carry the client timeout; it stays open
	// for the lifetime of the connection.
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/session/events", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	go c.readStream(resp)

	return c, nil
}

func (c *WAWebClient) Events() <-chan Event {
	return c.events
}

func (c *WAWebClient) SendText(ctx context.Context, to, body string) error {
	payload := map[string]string{"to": to, "body": body}
	if err := c.post(ctx, "/messages", payload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *WAWebClient) FetchMedia(ctx context.Context, messageID string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media/"+messageID, nil)
	if err != nil {
		return nil, fmt.Errorf("create media request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	var media Media
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	return &media, nil
}

func (c *WAWebClient) Logout(ctx context.Context) error {
	err := c.post(ctx, "/session/logout", nil)
	c.Close()
	return err
}

func (c *WAWebClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *WAWebClient) post(ctx context.Context, path string, payload any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	return nil
}

// readStream consumes the node's SSE stream and translates its raw events
// into the internal vocabulary. It closes the events channel on exit so the
// lifecycle manager observes the connection as gone.
func (c *WAWebClient) readStream(resp *http.Response) {
	defer resp.Body.Close()
	defer close(c.events)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data bytes.Buffer

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if eventName != "" {
				c.dispatch(eventName, data.Bytes())
			}
			eventName = ""
			data.Reset()
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("bridge event stream closed")
	}

	c.events <- Event{Type: EventDisconnected, Reason: "event stream closed"}
}

func (c *WAWebClient) dispatch(name string, data []byte) {
	var event Event

	switch name {
	case "qr":
		var payload struct {
			QR string `json:"qr"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Error().Err(err).Str("event", name).Msg("failed to decode bridge event")
			return
		}
		event = Event{Type: EventQR, QRCode: payload.QR}

	case "authenticated":
		event = Event{Type: EventAuthenticated}

	case "ready":
		var identity Identity
		if err := json.Unmarshal(data, &identity); err != nil {
			log.Error().Err(err).Str("event", name).Msg("failed to decode bridge event")
			return
		}
		event = Event{Type: EventReady, Identity: &identity}

	case "message":
		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("event", name).Msg("failed to decode bridge event")
			return
		}
		event = Event{Type: EventMessage, Message: &msg}

	case "message_ack":
		var ack AckEvent
		if err := json.Unmarshal(data, &ack); err != nil {
			log.Error().Err(err).Str("event", name).Msg("failed to decode bridge event")
			return
		}
		event = Event{Type: EventAck, Ack: &ack}

	case "disconnected":
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(data, &payload)
		event = Event{Type: EventDisconnected, Reason: payload.Reason}

	case "auth_failure", "error":
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &payload)
		event = Event{Type: EventError, Err: fmt.Errorf("bridge %s: %s", name, payload.Message)}

	default:
		log.Debug().Str("event", name).Msg("ignoring unknown bridge event")
		return
	}

	// Blocking on a full buffer pauses the stream read instead of losing
	// events; a dropped lifecycle event would strand the state machine.
	c.events <- event
}
