package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/llm"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
)

// ApiResponse is the envelope every successful API response is wrapped in.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeData wraps data in the success envelope.
func writeData(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps service sentinels to HTTP statuses. Anything unrecognized is logged
// and reported as a generic 500 so driver and platform details never reach the client.
func writeServiceError(w http.ResponseWriter, err error, action string, logger *zap.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrInvalidRole),
		errors.Is(err, apperrors.ErrGroupCycle):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), logger)
	case errors.Is(err, apperrors.ErrInvalidOAuthState):
		writeError(w, http.StatusBadRequest, "invalid_state", "Authorization expired or was already used", logger)
	case errors.Is(err, platforms.ErrReplyUnsupported):
		writeError(w, http.StatusBadRequest, "reply_unsupported", "This platform does not accept replies", logger)
	case errors.Is(err, apperrors.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error(), logger)
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found", logger)
	case errors.Is(err, apperrors.ErrLastOwner):
		writeError(w, http.StatusConflict, "last_owner", err.Error(), logger)
	case errors.Is(err, apperrors.ErrPlatformNotConnected):
		writeError(w, http.StatusConflict, "platform_not_connected", "Platform is not connected", logger)
	case errors.Is(err, apperrors.ErrInvitationUsed):
		writeError(w, http.StatusConflict, "invitation_used", err.Error(), logger)
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), logger)
	case errors.Is(err, apperrors.ErrInvitationExpired):
		writeError(w, http.StatusGone, "invitation_expired", "Invitation has expired", logger)
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error(), logger)
	case errors.Is(err, llm.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "AI features are not configured", logger)
	default:
		logger.Error("Failed to "+action, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to "+action, logger)
	}
}

// decodeJSON reads the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", logger)
		return false
	}
	return true
}
