// Package model defines the data structures of the tutor API.
package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Role represents the sender of a persisted message. Only the two
// conversational roles are ever stored.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a persistable role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ContentKindText is the only block kind produced today.
const ContentKindText = "text"

// ContentBlock is one (kind, text) piece of a message body.
type ContentBlock struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// TextBlocks wraps plain text into a single text block.
func TextBlocks(text string) []ContentBlock {
	return []ContentBlock{{Kind: ContentKindText, Text: text}}
}

// Message is a single immutable chat turn.
type Message struct {
	ID             string                            `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string                            `gorm:"size:36;not null;index" json:"conversation_id"`
	Role           Role                              `gorm:"size:16;not null" json:"role"`
	Content        datatypes.JSONSlice[ContentBlock] `gorm:"not null" json:"content"`
	CreatedAt      time.Time                         `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time                         `gorm:"not null" json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

// Text returns the text of the first content block.
func (m *Message) Text() string {
	if m == nil || len(m.Content) == 0 {
		return ""
	}
	return m.Content[0].Text
}

// SubmitTurnRequest is the body of POST /conversations/{id}/turns.
type SubmitTurnRequest struct {
	Text string `json:"text"`
}

// TurnResponse is returned after a completed turn.
type TurnResponse struct {
	Reply            string   `json:"reply"`
	UserMessage      *Message `json:"user_message"`
	AssistantMessage *Message `json:"assistant_message"`
}

// VoiceTurnResponse is returned after a voice turn.
type VoiceTurnResponse struct {
	Transcript       string     `json:"transcript"`
	Reply            string     `json:"reply"`
	AudioURL         string     `json:"audio_url,omitempty"`
	AudioExpiresAt   *time.Time `json:"audio_expires_at,omitempty"`
	UserMessage      *Message   `json:"user_message"`
	AssistantMessage *Message   `json:"assistant_message"`
}

// NormalizeBlocks defaults empty kinds to text and trims nothing else.
func NormalizeBlocks(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, len(blocks))
	for i, b := range blocks {
		if strings.TrimSpace(b.Kind) == "" {
			b.Kind = ContentKindText
		}
		out[i] = b
	}
	return out
}
