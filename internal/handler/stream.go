package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/audiostream"
	"github.com/lexi-tutor/lexi-api/internal/llm"
	"github.com/lexi-tutor/lexi-api/internal/middleware"
	"github.com/lexi-tutor/lexi-api/internal/model"
	"github.com/lexi-tutor/lexi-api/internal/service"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

const (
	// maxAudioUpload caps a recorded question.
	maxAudioUpload = 10 << 20

	// AudioPathPrefix is where synthesized replies are served.
	AudioPathPrefix = "/api/v1/audio/"
)

// VoiceHandler runs voice turns and serves the synthesized replies.
type VoiceHandler struct {
	turns       *service.TurnService
	transcriber llm.Transcriber
	synthesizer llm.Synthesizer
	registry    *audiostream.Registry
	logger      *logger.Logger
}

// NewVoiceHandler creates a new voice handler.
func NewVoiceHandler(
	turns *service.TurnService,
	transcriber llm.Transcriber,
	synthesizer llm.Synthesizer,
	registry *audiostream.Registry,
	log *logger.Logger,
) *VoiceHandler {
	return &VoiceHandler{
		turns:       turns,
		transcriber: transcriber,
		synthesizer: synthesizer,
		registry:    registry,
		logger:      log.Named("voice"),
	}
}

// Submit handles POST /api/v1/conversations/:id/voice
// The multipart field "audio" carries the recording. The transcript goes
// through the normal turn flow and the reply is synthesized into a stream.
func (h *VoiceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if h.transcriber == nil || h.synthesizer == nil {
		writeServiceError(w, r, h.logger, apperr.Provider("Voice is not available right now", errors.New("speech provider not configured")))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		writeServiceError(w, r, h.logger, apperr.Validation("invalid audio upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeServiceError(w, r, h.logger, apperr.Validation("audio file is required"))
		return
	}
	defer file.Close()

	transcript, err := h.transcriber.Transcribe(ctx, header.Filename, file)
	if err != nil {
		writeServiceError(w, r, h.logger, apperr.Provider("Lexi couldn't hear that", err))
		return
	}
	if strings.TrimSpace(transcript) == "" {
		writeServiceError(w, r, h.logger, apperr.Validation("no speech detected"))
		return
	}

	res, err := h.turns.SubmitTurn(ctx, conversationID, userID, transcript)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := &model.VoiceTurnResponse{
		Transcript:       transcript,
		Reply:            res.Reply,
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
	}

	// The turn is already recorded; a failed synthesis only drops the audio.
	speech, err := h.synthesizer.Synthesize(ctx, res.Reply)
	if err != nil {
		h.logger.Warn("speech synthesis failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	stream := h.registry.Put(userID, conversationID, speech.ContentType, speech.Audio)
	resp.AudioURL = AudioPathPrefix + stream.ID
	expires := stream.ExpiresAt
	resp.AudioExpiresAt = &expires

	writeJSON(w, http.StatusOK, resp)
}

// Audio handles GET /api/v1/audio/:streamID
func (h *VoiceHandler) Audio(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	streamID := chi.URLParam(r, "streamID")

	if err := middleware.ValidateStreamID(streamID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	stream, ok := h.registry.Get(streamID)
	if !ok {
		writeServiceError(w, r, h.logger, apperr.NotFound("audio stream"))
		return
	}
	if stream.OwnerID != userID {
		writeServiceError(w, r, h.logger, apperr.AccessDenied("audio stream belongs to another user"))
		return
	}

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(stream.Data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(stream.Data)
}
