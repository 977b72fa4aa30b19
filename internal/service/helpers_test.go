package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/lexi-tutor/lexi-api/internal/llm"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/internal/store"
	"github.com/lexi-tutor/lexi-api/internal/store/storetest"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// testClock returns t and then moves it forward by tick.
type testClock struct {
	mu   sync.Mutex
	t    time.Time
	tick time.Duration
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.tick)
	return now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []*llm.CompletionRequest

	// beforeReply runs while the model is "thinking", outside the lock.
	beforeReply func()
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.beforeReply != nil {
		f.beforeReply()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply, Model: "fake", TokensIn: 10, TokensOut: 5}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) lastRequest(t *testing.T) *llm.CompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("model was never called")
	}
	return f.requests[len(f.requests)-1]
}

type recordingEvents struct {
	mu     sync.Mutex
	events []model.ConversationEvent
}

func (r *recordingEvents) PublishEvent(ctx context.Context, event *model.ConversationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *recordingEvents) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	msgs     *store.MessageStore
	convs    *store.ConversationStore
	profiles *store.ProfileStore
	clock    *testClock
	events   *recordingEvents
	log      *logger.Logger
}

func newFixture(t *testing.T, start time.Time, tick time.Duration) *fixture {
	t.Helper()
	db := storetest.DB(t)
	clock := &testClock{t: start, tick: tick}
	f := &fixture{
		db:       db,
		msgs:     store.NewMessageStore(db, store.WithClock(clock.Now)),
		convs:    store.NewConversationStore(db, store.WithClock(clock.Now)),
		profiles: store.NewProfileStore(db),
		clock:    clock,
		events:   &recordingEvents{},
		log:      logger.NewNop(),
	}
	storetest.SeedProfile(t, context.Background(), db, "kid-1", "Maya")
	return f
}

func (f *fixture) seed(t *testing.T, ownerID string, at time.Time, n int) *model.Conversation {
	t.Helper()
	f.clock.Set(at)
	return storetest.SeedConversation(t, context.Background(), f.convs, f.msgs, ownerID, n)
}
