// Package audiostream keeps synthesized replies in memory until the client
// fetches them. Each reply gets its own id, so concurrent voice turns never
// overwrite each other.
package audiostream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/pkg/logger"
	"github.com/lexi-tutor/lexi-api/pkg/metrics"
)

// DefaultTTL is how long a reply stays fetchable.
const DefaultTTL = 5 * time.Minute

// Stream is one synthesized reply.
type Stream struct {
	ID             string
	OwnerID        string
	ConversationID string
	ContentType    string
	Data           []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Registry maps stream ids to audio with a time to live.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Stream
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(ttl time.Duration, log *logger.Logger, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		streams: make(map[string]*Stream),
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Named("audio"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put stores audio under a fresh id.
func (r *Registry) Put(ownerID, conversationID, contentType string, data []byte) *Stream {
	now := r.now()
	s := &Stream{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OwnerID:        ownerID,
		ConversationID: conversationID,
		ContentType:    contentType,
		Data:           data,
		CreatedAt:      now,
		ExpiresAt:      now.Add(r.ttl),
	}

	r.mu.Lock()
	r.streams[s.ID] = s
	n := len(r.streams)
	r.mu.Unlock()

	metrics.AudioStreamsActive.Set(float64(n))
	return s
}

// Get returns a live stream. Expired streams are dropped on access.
func (r *Registry) Get(id string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	if !r.now().Before(s.ExpiresAt) {
		delete(r.streams, id)
		metrics.AudioStreamsActive.Set(float64(len(r.streams)))
		return nil, false
	}
	return s, true
}

// Len returns the number of stored streams, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Sweep removes expired streams and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	removed := 0
	for id, s := range r.streams {
		if !now.Before(s.ExpiresAt) {
			delete(r.streams, id)
			removed++
		}
	}
	n := len(r.streams)
	r.mu.Unlock()

	metrics.AudioStreamsActive.Set(float64(n))
	return removed
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("expired audio streams removed", zap.Int("count", n))
			}
		}
	}
}
