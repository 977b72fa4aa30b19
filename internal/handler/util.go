package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/middleware"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// maxJSONBody caps request bodies. The longest valid turn is 4096
// characters of up to 4 bytes each.
const maxJSONBody = 64 << 10

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, ErrorResponse{Error: message, Detail: detail})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindProvider:
		return http.StatusBadGateway
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError translates a service error into a response. Unclassified
// errors never leak their text to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	reqLog := log.WithRequest(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context()))

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		reqLog.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	status := statusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		reqLog.Error("request failed", zap.String("kind", string(appErr.Kind)), zap.Error(err))
	}
	writeError(w, status, appErr.Message, appErr.Detail())
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}
