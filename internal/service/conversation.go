package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
	"github.com/lexi-tutor/lexi-api/pkg/metrics"
)

// SessionService starts and reads conversations.
type SessionService struct {
	conversations ConversationStore
	logger        *logger.Logger
	opts          options
}

// NewSessionService creates a session service.
func NewSessionService(conversations ConversationStore, log *logger.Logger, opts ...Option) *SessionService {
	return &SessionService{
		conversations: conversations,
		logger:        log.Named("session"),
		opts:          buildOptions(opts),
	}
}

// StartSession creates an empty conversation for ownerID.
func (s *SessionService) StartSession(ctx context.Context, ownerID string) (*model.Conversation, error) {
	conv, err := s.conversations.CreateConversation(ctx, ownerID)
	if err != nil {
		return nil, wrapStoreError("Couldn't start a new chat", err)
	}

	metrics.ConversationsStarted.Inc()
	s.logger.Info("conversation started",
		zap.String("conversation_id", conv.ID),
		zap.String("owner_id", ownerID),
	)
	publish(ctx, s.opts.events, s.logger, &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		OwnerID:        ownerID,
		Type:           model.EventSessionStarted,
		CreatedAt:      s.opts.now().UTC(),
	})

	return conv, nil
}

// GetSession loads a conversation the caller owns. A conversation owned by
// someone else is reported as not found.
func (s *SessionService) GetSession(ctx context.Context, conversationID, ownerID string) (*model.Conversation, error) {
	return loadOwned(ctx, s.conversations, conversationID, ownerID)
}

func loadOwned(ctx context.Context, conversations ConversationStore, conversationID, ownerID string) (*model.Conversation, error) {
	conv, err := conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, wrapStoreError("Couldn't load the chat", err)
	}
	if conv.OwnerID != ownerID {
		return nil, apperr.NotFound("conversation")
	}
	return conv, nil
}

// wrapStoreError keeps classified errors and marks the rest as backend failures.
func wrapStoreError(message string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Provider(message, err)
}

func publish(ctx context.Context, events EventPublisher, log *logger.Logger, event *model.ConversationEvent) {
	if events == nil {
		return
	}
	// Publishing outlives the request context.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := events.PublishEvent(pubCtx, event); err != nil {
		log.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
	}
}
