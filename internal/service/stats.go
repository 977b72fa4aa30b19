package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// SubstantiveThreshold is the message count a conversation must exceed to
// count as real engagement.
const SubstantiveThreshold = 5

// Timezone offsets outside this range (minutes) are rejected.
const (
	MinTimezoneOffset = -14 * 60
	MaxTimezoneOffset = 14 * 60
)

// Boundaries are local calendar boundaries expressed as UTC instants.
type Boundaries struct {
	TodayStart        time.Time
	TomorrowStart     time.Time
	YesterdayStart    time.Time
	WeekStart         time.Time
	NextWeekStart     time.Time
	PreviousWeekStart time.Time
}

// ValidateTimezoneOffset checks a browser style offset in minutes.
func ValidateTimezoneOffset(offsetMinutes int) error {
	if offsetMinutes < MinTimezoneOffset || offsetMinutes > MaxTimezoneOffset {
		return apperr.Validation("timezone offset %d out of range", offsetMinutes)
	}
	return nil
}

// LocalMidnight returns the UTC instant of the caller's local midnight on
// the day containing now. offsetMinutes follows the browser convention:
// local = utc - offset, so UTC+2 is -120.
func LocalMidnight(now time.Time, offsetMinutes int) time.Time {
	shift := time.Duration(offsetMinutes) * time.Minute
	local := now.UTC().Add(-shift)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(shift)
}

// ComputeBoundaries derives day and ISO week (Monday start) boundaries in
// the caller's local time.
func ComputeBoundaries(now time.Time, offsetMinutes int) Boundaries {
	today := LocalMidnight(now, offsetMinutes)

	shift := time.Duration(offsetMinutes) * time.Minute
	localWeekday := today.Add(-shift).Weekday()
	sinceMonday := (int(localWeekday) + 6) % 7
	weekStart := today.AddDate(0, 0, -sinceMonday)

	return Boundaries{
		TodayStart:        today,
		TomorrowStart:     today.AddDate(0, 0, 1),
		YesterdayStart:    today.AddDate(0, 0, -1),
		WeekStart:         weekStart,
		NextWeekStart:     weekStart.AddDate(0, 0, 7),
		PreviousWeekStart: weekStart.AddDate(0, 0, -7),
	}
}

// StatsService computes engagement metrics.
type StatsService struct {
	conversations ConversationStore
	profiles      ProfileStore
	logger        *logger.Logger
	opts          options
}

// NewStatsService creates a stats service.
func NewStatsService(conversations ConversationStore, profiles ProfileStore, log *logger.Logger, opts ...Option) *StatsService {
	return &StatsService{
		conversations: conversations,
		profiles:      profiles,
		logger:        log.Named("stats"),
		opts:          buildOptions(opts),
	}
}

// GetEngagementStats counts substantive conversations per local bucket.
func (s *StatsService) GetEngagementStats(ctx context.Context, userID string, offsetMinutes int) (*model.EngagementStats, error) {
	if err := ValidateTimezoneOffset(offsetMinutes); err != nil {
		return nil, err
	}
	b := ComputeBoundaries(s.opts.now(), offsetMinutes)

	var stats model.EngagementStats
	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int, start, end time.Time) {
		g.Go(func() error {
			convs, err := s.conversations.FindByOwnerInRange(gctx, userID, start, end, SubstantiveThreshold)
			if err != nil {
				return err
			}
			*dst = len(convs)
			return nil
		})
	}
	count(&stats.CurrentWeek, b.WeekStart, b.NextWeekStart)
	count(&stats.PreviousWeek, b.PreviousWeekStart, b.WeekStart)
	count(&stats.Today, b.TodayStart, b.TomorrowStart)
	count(&stats.Yesterday, b.YesterdayStart, b.TodayStart)

	if err := g.Wait(); err != nil {
		return nil, wrapStoreError("Couldn't load your progress", err)
	}
	return &stats, nil
}

// GetStats returns targets and engagement counts, and remembers the
// caller's offset for the scheduled retention sweep.
func (s *StatsService) GetStats(ctx context.Context, userID string, offsetMinutes int) (*model.StatsResponse, error) {
	if err := ValidateTimezoneOffset(offsetMinutes); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, wrapStoreError("Couldn't load your progress", err)
	}

	stats, err := s.GetEngagementStats(ctx, userID, offsetMinutes)
	if err != nil {
		return nil, err
	}

	if profile.TimezoneOffset != offsetMinutes {
		if err := s.profiles.RecordTimezoneOffset(ctx, userID, offsetMinutes); err != nil {
			s.logger.Warn("failed to record timezone offset", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return &model.StatsResponse{
		Targets: model.Targets{Daily: profile.DailyTarget, Weekly: profile.WeeklyTarget},
		Stats:   *stats,
	}, nil
}
