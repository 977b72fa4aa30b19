package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/model"
)

const (
	messageCountSQL = "(SELECT COUNT(*) FROM conversation_messages cm WHERE cm.conversation_id = conversations.id)"

	deleteBatchSize = 500
)

// ConversationStore persists sessions and their ordered message references.
type ConversationStore struct {
	db   *gorm.DB
	opts options
}

// NewConversationStore creates a conversation store.
func NewConversationStore(db *gorm.DB, opts ...Option) *ConversationStore {
	return &ConversationStore{db: db, opts: buildOptions(opts)}
}

// CreateConversation creates an empty conversation owned by ownerID.
func (s *ConversationStore) CreateConversation(ctx context.Context, ownerID string) (*model.Conversation, error) {
	if ownerID == "" {
		return nil, apperr.Validation("owner id is required")
	}

	now := s.opts.now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
	}

	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads a conversation with its messages in chronological order.
func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	conv.MessageCount = len(msgs)
	return &conv, nil
}

// ListMessages returns the referenced messages sorted by creation time.
// Insertion order of the references is deliberately ignored.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs := []model.Message{}
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_messages cm ON cm.message_id = messages.id").
		Where("cm.conversation_id = ?", conversationID).
		Order("messages.created_at ASC, messages.id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// AppendMessage links messageID into the conversation. Appending the same
// message twice is a no-op. A message owned by another conversation is rejected.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID, messageID string) (*model.Conversation, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("conversation")
			}
			return err
		}

		var msg model.Message
		if err := tx.First(&msg, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("message")
			}
			return err
		}
		if msg.ConversationID != conv.ID {
			return apperr.Validation("message %s belongs to another conversation", messageID)
		}

		now := s.opts.now()
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.ConversationMessage{
			MessageID:      msg.ID,
			ConversationID: conv.ID,
			CreatedAt:      now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		return tx.Model(&model.Conversation{}).
			Where("id = ?", conv.ID).
			Update("updated_at", now).Error
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	return s.GetConversation(ctx, conversationID)
}

// FindByOwnerInRange returns the owner's conversations created in
// [start, end) with strictly more than minMessageCount messages.
func (s *ConversationStore) FindByOwnerInRange(ctx context.Context, ownerID string, start, end time.Time, minMessageCount int) ([]model.Conversation, error) {
	convs := []model.Conversation{}
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Select("conversations.*, "+messageCountSQL+" AS message_count").
		Where("conversations.owner_id = ?", ownerID).
		Where("conversations.created_at >= ? AND conversations.created_at < ?", start.UTC(), end.UTC()).
		Where(messageCountSQL+" > ?", minMessageCount).
		Order("conversations.created_at ASC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find conversations: %w", err)
	}
	return convs, nil
}

// DeleteOlderThan permanently deletes the owner's conversations created
// before cutoff, together with their messages. Returns the number of
// conversations removed.
func (s *ConversationStore) DeleteOlderThan(ctx context.Context, ownerID string, cutoff time.Time) (int64, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("owner_id = ? AND created_at < ?", ownerID, cutoff.UTC()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to select expired conversations: %w", err)
	}

	var deleted int64
	for len(ids) > 0 {
		n := min(len(ids), deleteBatchSize)
		batch := ids[:n]
		ids = ids[n:]

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("conversation_id IN ?", batch).Delete(&model.ConversationMessage{}).Error; err != nil {
				return err
			}
			if err := tx.Where("conversation_id IN ?", batch).Delete(&model.Message{}).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", batch).Delete(&model.Conversation{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete conversations: %w", err)
		}
	}
	return deleted, nil
}

// PurgeOrphans deletes messages and references whose conversation no longer
// exists. A turn racing retention can create them after the conversation
// was deleted. Returns the number of messages removed.
func (s *ConversationStore) PurgeOrphans(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orphanRefs := tx.Model(&model.Conversation{}).Select("1").Where("conversations.id = conversation_messages.conversation_id")
		if err := tx.Where("NOT EXISTS (?)", orphanRefs).Delete(&model.ConversationMessage{}).Error; err != nil {
			return err
		}
		orphanMsgs := tx.Model(&model.Conversation{}).Select("1").Where("conversations.id = messages.conversation_id")
		res := tx.Where("NOT EXISTS (?)", orphanMsgs).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge orphaned messages: %w", err)
	}
	return deleted, nil
}
