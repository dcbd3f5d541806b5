package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/botdesk/bridge-server-go/internal/config"
	"github.com/botdesk/bridge-server-go/internal/model"
)

// Responder produces the automated reply for an inbound message. It is an
// opaque, possibly slow, possibly failing collaborator; an empty reply means
// "send nothing".
type Responder interface {
	Respond(ctx context.Context, message *model.ChatMessage, conversation *model.Conversation) (string, error)
}

// WebhookResponder calls an external responder service over HTTP.
type WebhookResponder struct {
	url    string
	client *http.Client
}

func NewWebhookResponder(url string) *WebhookResponder {
	return &WebhookResponder{
		url: url,
		client: &http.Client{
			Timeout: config.ResponderTimeout,
		},
	}
}

func (r *WebhookResponder) Respond(ctx context.Context, message *model.ChatMessage, conversation *model.Conversation) (string, error) {
	body, err := json.Marshal(map[string]any{
		"message":      message,
		"conversation": conversation,
	})
	if err != nil {
		return "", fmt.Errorf("marshal responder payload: %w", err)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create responder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Dur("elapsed", elapsed).
			Msg("responder request failed")
		return "", fmt.Errorf("responder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("responder returned non-2xx status")
		return "", fmt.Errorf("responder returned status %d", resp.StatusCode)
	}

	var result struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode responder reply: %w", err)
	}

	log.Debug().
		Dur("elapsed", elapsed).
		Str("messageId", message.ID).
		Msg("responder replied")

	return result.Reply, nil
}

// StaticResponder echoes a canned acknowledgement. Used when no responder
// service is configured.
type StaticResponder struct{}

func (StaticResponder) Respond(_ context.Context, message *model.ChatMessage, _ *model.Conversation) (string, error) {
	content := ""
	if message.Content != nil {
		content = *message.Content
	}
	return fmt.Sprintf("This is an automated response to: %q", content), nil
}
