package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/middleware"
	"github.com/lexi-tutor/lexi-api/internal/service"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// StatsHandler serves engagement statistics.
type StatsHandler struct {
	stats        *service.StatsService
	retention    *service.RetentionService
	pruneOnStats bool
	logger       *logger.Logger
}

// NewStatsHandler creates a stats handler. When pruneOnStats is set every
// stats read also enforces retention for the caller.
func NewStatsHandler(stats *service.StatsService, retention *service.RetentionService, pruneOnStats bool, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		stats:        stats,
		retention:    retention,
		pruneOnStats: pruneOnStats,
		logger:       log.Named("stats"),
	}
}

// Get handles GET /api/v1/stats?tz_offset=N
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	offset, err := middleware.ParseTimezoneOffset(r.URL.Query().Get("tz_offset"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.stats.GetStats(ctx, userID, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if h.pruneOnStats && h.retention != nil {
		pruned, err := h.retention.PruneRetention(ctx, userID, offset, h.retention.RetentionDays())
		if err != nil {
			h.logger.Warn("retention prune failed", zap.String("user_id", userID), zap.Error(err))
		}
		resp.Pruned = pruned
	}

	writeJSON(w, http.StatusOK, resp)
}
