package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/model"
)

// MessageStore persists individual chat turns.
type MessageStore struct {
	db   *gorm.DB
	opts options
}

// NewMessageStore creates a message store.
func NewMessageStore(db *gorm.DB, opts ...Option) *MessageStore {
	return &MessageStore{db: db, opts: buildOptions(opts)}
}

// CreateMessage persists one immutable message. It does not link the
// message into its conversation.
func (s *MessageStore) CreateMessage(ctx context.Context, role model.Role, blocks []model.ContentBlock, conversationID string) (*model.Message, error) {
	if !role.Valid() {
		return nil, apperr.Validation("invalid role %q", role)
	}
	if len(blocks) == 0 {
		return nil, apperr.Validation("message content cannot be empty")
	}
	for i, b := range blocks {
		if b.Text == "" {
			return nil, apperr.Validation("content block %d has no text", i)
		}
	}
	if conversationID == "" {
		return nil, apperr.Validation("conversation id is required")
	}

	now := s.opts.now()
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        model.NormalizeBlocks(blocks),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

// GetMessage loads a message by id.
func (s *MessageStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("message")
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}
