package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventSessionStarted  EventType = "session.started"
	EventTurnUser        EventType = "turn.user"
	EventTurnAssistant   EventType = "turn.assistant"
	EventTurnFailed      EventType = "turn.failed"
	EventRetentionPruned EventType = "retention.pruned"
)

// ConversationEvent is published to the event stream as turns happen.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	OwnerID        string         `json:"owner_id"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
