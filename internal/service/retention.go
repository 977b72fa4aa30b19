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

// Retention triggers, used as metric labels.
const (
	TriggerStats    = "stats"
	TriggerSchedule = "schedule"
)

const sweepPageSize = 200

// RetentionCutoff is the UTC instant before which conversations expire:
// local midnight today minus retentionDays days.
func RetentionCutoff(now time.Time, offsetMinutes, retentionDays int) time.Time {
	return LocalMidnight(now, offsetMinutes).AddDate(0, 0, -retentionDays)
}

// SweepResult summarizes a full retention pass.
type SweepResult struct {
	Users   int
	Deleted int64
	Failed  int
	// Orphans counts messages removed because their conversation was gone.
	Orphans int64
}

// RetentionService permanently deletes stale conversations.
type RetentionService struct {
	conversations ConversationStore
	profiles      ProfileStore
	retentionDays int
	logger        *logger.Logger
	opts          options
}

// NewRetentionService creates a retention service with a default window.
func NewRetentionService(conversations ConversationStore, profiles ProfileStore, retentionDays int, log *logger.Logger, opts ...Option) *RetentionService {
	return &RetentionService{
		conversations: conversations,
		profiles:      profiles,
		retentionDays: retentionDays,
		logger:        log.Named("retention"),
		opts:          buildOptions(opts),
	}
}

// RetentionDays returns the configured window.
func (s *RetentionService) RetentionDays() int {
	return s.retentionDays
}

// PruneRetention deletes every conversation of userID created before the
// retention cutoff, regardless of size. There is no grace period.
func (s *RetentionService) PruneRetention(ctx context.Context, userID string, offsetMinutes, retentionDays int) (int64, error) {
	return s.prune(ctx, userID, offsetMinutes, retentionDays, TriggerStats)
}

func (s *RetentionService) prune(ctx context.Context, userID string, offsetMinutes, retentionDays int, trigger string) (int64, error) {
	if err := ValidateTimezoneOffset(offsetMinutes); err != nil {
		return 0, err
	}
	if retentionDays < 0 {
		return 0, apperr.Validation("retention days must not be negative")
	}

	cutoff := RetentionCutoff(s.opts.now(), offsetMinutes, retentionDays)
	deleted, err := s.conversations.DeleteOlderThan(ctx, userID, cutoff)
	if err != nil {
		return deleted, wrapStoreError("Couldn't clean up old chats", err)
	}

	metrics.RecordPruned(trigger, deleted)
	if deleted > 0 {
		s.logger.Info("conversations pruned",
			zap.String("user_id", userID),
			zap.String("trigger", trigger),
			zap.Time("cutoff", cutoff),
			zap.Int64("deleted", deleted),
		)
		publish(ctx, s.opts.events, s.logger, &model.ConversationEvent{
			ID:        uuid.Must(uuid.NewV7()).String(),
			OwnerID:   userID,
			Type:      model.EventRetentionPruned,
			Reason:    trigger,
			Metadata:  map[string]any{"deleted": deleted, "cutoff": cutoff},
			CreatedAt: s.opts.now().UTC(),
		})
	}
	return deleted, nil
}

// SweepAll prunes every profile with its last known offset and the
// configured window, then purges orphaned messages. Failures for one user
// do not stop the sweep.
func (s *RetentionService) SweepAll(ctx context.Context) (SweepResult, error) {
	res, err := s.sweepUsers(ctx)
	if err != nil {
		return res, err
	}

	orphans, err := s.conversations.PurgeOrphans(ctx)
	if err != nil {
		return res, wrapStoreError("Couldn't purge orphaned messages", err)
	}
	res.Orphans = orphans
	if orphans > 0 {
		s.logger.Info("purged orphaned messages", zap.Int64("messages", orphans))
	}
	return res, nil
}

func (s *RetentionService) sweepUsers(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	after := ""
	for {
		page, err := s.profiles.ListProfiles(ctx, after, sweepPageSize)
		if err != nil {
			return res, wrapStoreError("Couldn't list users", err)
		}
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Users++
			n, err := s.prune(ctx, p.ID, clampOffset(p.TimezoneOffset), s.retentionDays, TriggerSchedule)
			if err != nil {
				res.Failed++
				s.logger.Warn("retention sweep failed for user", zap.String("user_id", p.ID), zap.Error(err))
				continue
			}
			res.Deleted += n
		}
		if len(page) < sweepPageSize {
			return res, nil
		}
		after = page[len(page)-1].ID
	}
}

func clampOffset(offset int) int {
	return max(MinTimezoneOffset, min(MaxTimezoneOffset, offset))
}
