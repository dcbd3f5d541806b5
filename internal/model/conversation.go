package model

import (
	"encoding/json"
	"time"
)

type Conversation struct {
	ID                 string             `db:"id" json:"id"`
	ExternalContactID  string             `db:"external_contact_id" json:"externalContactId"`
	DisplayName        *string            `db:"display_name" json:"displayName,omitempty"`
	Status             ConversationStatus `db:"status" json:"status"`
	IsAutomatedControl bool               `db:"is_automated_control" json:"isAutomatedControl"`
	AssignedOperatorID *string            `db:"assigned_operator_id" json:"assignedOperatorId,omitempty"`
	LastMessage        *string            `db:"last_message" json:"lastMessage,omitempty"`
	LastMessageAt      *time.Time         `db:"last_message_at" json:"lastMessageAt,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updatedAt"`

	// UnreadCount is computed per listing, not stored.
	UnreadCount int `db:"-" json:"unreadCount"`
}

type UpsertConversationParams struct {
	ID                string
	ExternalContactID string
	DisplayName       *string
}

// ToSSEEventData returns JSON data for SSE conversation events
func (c *Conversation) ToSSEEventData() json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"id":                 c.ID,
		"externalContactId":  c.ExternalContactID,
		"isAutomatedControl": c.IsAutomatedControl,
		"status":             c.Status,
	})
	return data
}
