package middleware

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/internal/service"
)

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("invalid conversation ID format")
	}
	return nil
}

// ValidateStreamID validates an audio stream ID.
func ValidateStreamID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("invalid stream ID format")
	}
	return nil
}

// ParseTimezoneOffset parses the tz_offset query value in minutes.
func ParseTimezoneOffset(raw string) (int, error) {
	if raw == "" {
		return 0, apperr.Validation("tz_offset is required")
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("tz_offset must be an integer number of minutes")
	}
	if err := service.ValidateTimezoneOffset(offset); err != nil {
		return 0, err
	}
	return offset, nil
}
