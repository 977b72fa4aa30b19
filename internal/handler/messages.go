package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lexi-tutor/lexi-api/internal/middleware"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/internal/service"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// TurnHandler handles text turns.
type TurnHandler struct {
	turns  *service.TurnService
	logger *logger.Logger
}

// NewTurnHandler creates a new turn handler.
func NewTurnHandler(turns *service.TurnService, log *logger.Logger) *TurnHandler {
	return &TurnHandler{
		turns:  turns,
		logger: log.Named("turns"),
	}
}

// Submit handles POST /api/v1/conversations/:id/turns
func (h *TurnHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req model.SubmitTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	res, err := h.turns.SubmitTurn(ctx, conversationID, userID, req.Text)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.TurnResponse{
		Reply:            res.Reply,
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
	})
}
