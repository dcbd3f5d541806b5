package model

import (
	"encoding/json"
	"time"
)

type ChatMessage struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversationId"`
	SenderType     SenderType `db:"sender_type" json:"senderType"`
	SenderID       string     `db:"sender_id" json:"senderId"`
	Content        *string    `db:"content" json:"content,omitempty"`
	MediaType      *string    `db:"media_type" json:"mediaType,omitempty"`
	Timestamp      time.Time  `db:"timestamp" json:"timestamp"`
	IsRead         bool       `db:"is_read" json:"isRead"`
}

type CreateMessageParams struct {
	ID             string
	ConversationID string
	SenderType     SenderType
	SenderID       string
	Content        *string
	MediaType      *string
	IsRead         bool
}

// ToSSEEventData returns JSON data for SSE message events
func (m *ChatMessage) ToSSEEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":             m.ID,
		"conversationId": m.ConversationID,
		"senderType":     m.SenderType,
		"content":        m.Content,
		"timestamp":      m.Timestamp,
	})
	return data
}
