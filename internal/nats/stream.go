package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "LEXI_CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "lexi"

	// noConversation stands in for events that are not tied to one session.
	noConversation = "_"
)

// publisher is the part of jetstream.JetStream used for publishing.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// EventStream publishes conversation events to JetStream.
type EventStream struct {
	client *Client
	pub    publisher
	logger *logger.Logger
}

// NewEventStream creates an event stream on an open client.
func NewEventStream(client *Client, log *logger.Logger) *EventStream {
	return &EventStream{
		client: client,
		pub:    client.JetStream(),
		logger: log.Named("events"),
	}
}

// EnsureStream creates the conversation events stream if it is missing.
func (s *EventStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  2 * time.Minute,
		Description: "Lexi conversation and retention events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	s.logger.Info("stream created", zap.String("stream", StreamName))
	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(ownerID, conversationID string, eventType model.EventType) string {
	if conversationID == "" {
		conversationID = noConversation
	}
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, token(ownerID), token(conversationID), eventType)
}

// token makes an id safe to use as a single subject token.
func token(id string) string {
	if id == "" {
		return noConversation
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, id)
}

// PublishEvent publishes an event. The event id doubles as the JetStream
// message id, so a retried publish is deduplicated.
func (s *EventStream) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	subject := EventSubject(event.OwnerID, event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := s.pub.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	s.logger.Debug("event published",
		zap.String("subject", subject),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}
