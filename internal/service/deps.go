// Package service implements the conversation core: sessions, the turn
// orchestrator, context windows, engagement stats and retention.
package service

import (
	"context"
	"time"

	"github.com/lexi-tutor/lexi-api/internal/model"
)

// MessageStore persists individual turns.
type MessageStore interface {
	CreateMessage(ctx context.Context, role model.Role, blocks []model.ContentBlock, conversationID string) (*model.Message, error)
}

// ConversationStore persists sessions.
type ConversationStore interface {
	CreateConversation(ctx context.Context, ownerID string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, messageID string) (*model.Conversation, error)
	FindByOwnerInRange(ctx context.Context, ownerID string, start, end time.Time, minMessageCount int) ([]model.Conversation, error)
	DeleteOlderThan(ctx context.Context, ownerID string, cutoff time.Time) (int64, error)
	PurgeOrphans(ctx context.Context) (int64, error)
}

// ProfileStore reads user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	RecordTimezoneOffset(ctx context.Context, userID string, offsetMinutes int) error
	ListProfiles(ctx context.Context, afterID string, limit int) ([]model.UserProfile, error)
}

// EventPublisher receives conversation events. Publishing is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) error
}

// Option configures a service.
type Option func(*options)

type options struct {
	now    func() time.Time
	events EventPublisher
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvents attaches an event publisher.
func WithEvents(p EventPublisher) Option {
	return func(o *options) { o.events = p }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
