// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/service"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// DefaultRetentionSpec runs the sweep daily at 03:15 UTC.
const DefaultRetentionSpec = "15 3 * * *"

// Sweeper prunes expired conversations for every user.
type Sweeper interface {
	SweepAll(ctx context.Context) (service.SweepResult, error)
}

// RetentionSweeper triggers the retention sweep on a cron schedule.
type RetentionSweeper struct {
	cron    *cron.Cron
	spec    string
	sweeper Sweeper
	timeout time.Duration
	logger  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entry   cron.EntryID
	started bool
}

// NewRetentionSweeper creates a sweeper. An empty spec uses DefaultRetentionSpec.
func NewRetentionSweeper(spec string, sweeper Sweeper, log *logger.Logger) *RetentionSweeper {
	if spec == "" {
		spec = DefaultRetentionSpec
	}
	log = log.Named("scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	return &RetentionSweeper{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(
				cron.Recover(cronLogger{log}),
				cron.SkipIfStillRunning(cronLogger{log}),
			),
		),
		spec:    spec,
		sweeper: sweeper,
		timeout: time.Hour,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the job and starts the cron loop.
func (s *RetentionSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("retention sweeper already started")
	}

	id, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(s.ctx); err != nil {
			s.logger.Error("retention sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.entry = id
	s.started = true
	s.cron.Start()

	s.logger.Info("retention sweeper started",
		zap.String("spec", s.spec),
		zap.Time("next_run", s.cron.Entry(id).Next),
	)
	return nil
}

// Stop cancels a running sweep and waits for it to return.
func (s *RetentionSweeper) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("retention sweeper stopped")
}

// NextRun reports when the sweep runs next. Zero before Start.
func (s *RetentionSweeper) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// RunOnce performs one sweep immediately.
func (s *RetentionSweeper) RunOnce(ctx context.Context) (service.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.sweeper.SweepAll(ctx)
	s.logger.Info("retention sweep finished",
		zap.Int("users", res.Users),
		zap.Int64("deleted", res.Deleted),
		zap.Int("failed", res.Failed),
		zap.Int64("orphans", res.Orphans),
		zap.Duration("duration", time.Since(start)),
	)
	return res, err
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
