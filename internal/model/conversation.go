package model

import (
	"time"
)

// Conversation is a chat session owned by a single user.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string    `gorm:"size:64;not null;index:idx_conversations_owner_created,priority:1" json:"owner_id"`
	CreatedAt time.Time `gorm:"not null;index:idx_conversations_owner_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// MessageCount is filled by queries that select it.
	MessageCount int `gorm:"->;-:migration" json:"message_count"`

	// Messages are resolved in chronological order on read.
	Messages []Message `gorm:"-" json:"messages"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMessage links a message into a conversation. The primary key
// on message_id makes every reference unique.
type ConversationMessage struct {
	MessageID      string    `gorm:"primaryKey;size:36"`
	ConversationID string    `gorm:"size:36;not null;index"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (ConversationMessage) TableName() string { return "conversation_messages" }
