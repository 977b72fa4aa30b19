package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/llm"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
	"github.com/lexi-tutor/lexi-api/pkg/metrics"
	"github.com/lexi-tutor/lexi-api/pkg/tracing"
)

// ReplyFailedMessage is the stable message surfaced when no reply could be produced.
const ReplyFailedMessage = "Lexi couldn't answer right now"

// TurnState is a step of the append-query-append protocol.
type TurnState string

const (
	StateIdle                  TurnState = "idle"
	StateUserTurnRecorded      TurnState = "user_turn_recorded"
	StateContextBuilt          TurnState = "context_built"
	StateModelInvoked          TurnState = "model_invoked"
	StateAssistantTurnRecorded TurnState = "assistant_turn_recorded"
)

// TurnConfig tunes model calls.
type TurnConfig struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	WindowSize      int
}

// DefaultTurnConfig returns the production caps.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		Temperature:     0.7,
		MaxOutputTokens: MaxOutputTokens,
		WindowSize:      ContextWindowSize,
	}
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Reply            string
	UserMessage      *model.Message
	AssistantMessage *model.Message
}

// TurnService runs the turn orchestrator.
type TurnService struct {
	messages      MessageStore
	conversations ConversationStore
	profiles      ProfileStore
	llmClient     llm.Client
	cfg           TurnConfig
	logger        *logger.Logger
	opts          options
}

// NewTurnService creates the orchestrator.
func NewTurnService(
	messages MessageStore,
	conversations ConversationStore,
	profiles ProfileStore,
	llmClient llm.Client,
	cfg TurnConfig,
	log *logger.Logger,
	opts ...Option,
) *TurnService {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = MaxOutputTokens
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = ContextWindowSize
	}
	return &TurnService{
		messages:      messages,
		conversations: conversations,
		profiles:      profiles,
		llmClient:     llmClient,
		cfg:           cfg,
		logger:        log.Named("turn"),
		opts:          buildOptions(opts),
	}
}

// ValidateTurnText checks the user's input against the input cap.
func ValidateTurnText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("message cannot be empty")
	}
	if !utf8.ValidString(text) {
		return apperr.Validation("message must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(text); n > MaxInputChars {
		return apperr.Validation("message is too long (%d characters, max %d)", n, MaxInputChars)
	}
	return nil
}

// SubmitTurn records the user's text, asks the model for a reply and
// records the reply. The user turn is kept even when the model fails, so
// a conversation may end in an unanswered question.
func (s *TurnService) SubmitTurn(ctx context.Context, conversationID, ownerID, text string) (*TurnResult, error) {
	ctx, span := tracing.Tracer("lexi/service").Start(ctx, "SubmitTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("input.chars", utf8.RuneCountInString(text)),
	)

	log := s.logger.With(
		zap.String("conversation_id", conversationID),
		zap.String("owner_id", ownerID),
	)

	state := StateIdle
	fail := func(err error) (*TurnResult, error) {
		metrics.TurnsTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(state))
		log.Warn("turn failed", zap.String("state", string(state)), zap.Error(err))
		if state != StateIdle {
			publish(ctx, s.opts.events, s.logger, &model.ConversationEvent{
				ID:             uuid.Must(uuid.NewV7()).String(),
				ConversationID: conversationID,
				OwnerID:        ownerID,
				Type:           model.EventTurnFailed,
				Reason:         err.Error(),
				Metadata:       map[string]any{"state": string(state)},
				CreatedAt:      s.opts.now().UTC(),
			})
		}
		return nil, err
	}

	if err := ValidateTurnText(text); err != nil {
		return fail(err)
	}
	if _, err := loadOwned(ctx, s.conversations, conversationID, ownerID); err != nil {
		return fail(err)
	}
	profile, err := s.profiles.GetProfile(ctx, ownerID)
	if err != nil {
		return fail(wrapStoreError(ReplyFailedMessage, err))
	}

	// The message must exist before it can be referenced. A failure between
	// the two calls leaves an orphaned message, never a dangling reference.
	userMsg, err := s.messages.CreateMessage(ctx, model.RoleUser, model.TextBlocks(text), conversationID)
	if err != nil {
		return fail(wrapStoreError(ReplyFailedMessage, err))
	}
	conv, err := s.conversations.AppendMessage(ctx, conversationID, userMsg.ID)
	if err != nil {
		return fail(wrapStoreError(ReplyFailedMessage, err))
	}
	state = StateUserTurnRecorded
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	s.recorded(ctx, conv, userMsg)

	window := buildWindow(conv.Messages, s.cfg.WindowSize)
	state = StateContextBuilt
	span.SetAttributes(attribute.Int("context.messages", len(window)))

	reply, err := s.complete(ctx, profile, window)
	if err != nil {
		return fail(apperr.Provider(ReplyFailedMessage, err))
	}
	state = StateModelInvoked

	assistantMsg, err := s.messages.CreateMessage(ctx, model.RoleAssistant, model.TextBlocks(reply), conversationID)
	if err != nil {
		return fail(wrapStoreError(ReplyFailedMessage, err))
	}
	conv, err = s.conversations.AppendMessage(ctx, conversationID, assistantMsg.ID)
	if err != nil {
		return fail(wrapStoreError(ReplyFailedMessage, err))
	}
	state = StateAssistantTurnRecorded
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	metrics.TurnsTotal.WithLabelValues("success").Inc()
	s.recorded(ctx, conv, assistantMsg)

	log.Info("turn completed",
		zap.Int("context_messages", len(window)),
		zap.Int("conversation_messages", len(conv.Messages)),
	)

	return &TurnResult{
		Reply:            reply,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

func (s *TurnService) complete(ctx context.Context, profile *model.UserProfile, window []llm.ChatMessage) (string, error) {
	if s.llmClient == nil {
		return "", errors.New("no language model configured")
	}

	start := time.Now()
	resp, err := s.llmClient.Complete(ctx, &llm.CompletionRequest{
		Model:       s.cfg.Model,
		System:      SystemPrompt(profile),
		Messages:    window,
		MaxTokens:   s.cfg.MaxOutputTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		metrics.RecordLLMCall(s.llmClient.Name(), "error", time.Since(start).Seconds(), 0, 0)
		return "", err
	}
	metrics.RecordLLMCall(s.llmClient.Name(), "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", errors.New("language model returned an empty reply")
	}
	return reply, nil
}

func (s *TurnService) recorded(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	eventType := model.EventTurnUser
	if msg.Role == model.RoleAssistant {
		eventType = model.EventTurnAssistant
	}
	publish(ctx, s.opts.events, s.logger, &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Type:           eventType,
		Metadata: map[string]any{
			"message_id":    msg.ID,
			"message_count": len(conv.Messages),
		},
		CreatedAt: s.opts.now().UTC(),
	})
}
