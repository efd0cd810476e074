package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, map[string]string{"error": message})
}

// WriteDomainError maps service errors onto HTTP statuses. Anything that is
// not a known domain error is logged and reported as a 500.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error, logMsg string, attrs ...any) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, logger, http.StatusBadRequest, map[string][]string{verr.Field: {verr.Message}})
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, logger, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, logger, http.StatusForbidden, "you do not have permission to perform this action")
	case errors.Is(err, domain.ErrUnauthenticated):
		WriteError(w, logger, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
	default:
		logger.Error(logMsg, append([]any{"error", err}, attrs...)...)
		WriteError(w, logger, http.StatusInternalServerError, "internal server error")
	}
}

// DecodeJSON decodes the request body into dst, reporting malformed bodies
// as a validation failure.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.NewValidationError("non_field_errors", "invalid request body")
	}
	return nil
}
