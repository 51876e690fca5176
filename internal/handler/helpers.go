package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/greenmart/grocery-backend/internal/notification"
	"github.com/greenmart/grocery-backend/internal/order"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondWithValidationErrors(w http.ResponseWriter, err error) bool {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return false
	}
	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation failed",
		Details: formatValidationErrors(validationErrors),
	})
	return true
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		switch fieldErr.Tag() {
		case "required":
			details[fieldErr.Field()] = "is required"
		case "min":
			details[fieldErr.Field()] = fmt.Sprintf("must have at least %s elements", fieldErr.Param())
		case "gt":
			details[fieldErr.Field()] = fmt.Sprintf("must be greater than %s", fieldErr.Param())
		case "uuid4":
			details[fieldErr.Field()] = "must be a valid UUID"
		default:
			details[fieldErr.Field()] = fmt.Sprintf("failed %s validation", fieldErr.Tag())
		}
	}
	return details
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrUserNotFound),
		errors.Is(err, notification.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrReasonRequired),
		errors.Is(err, order.ErrProductNotFound):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOutOfStock),
		errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError maps a service error to its status code. Invalid
// transitions get a structured body carrying the attempted and allowed sets.
func respondServiceError(w http.ResponseWriter, err error) {
	var transitionErr *order.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":            "invalid status transition",
			"current_status":   transitionErr.From,
			"attempted_status": transitionErr.To,
			"allowed_statuses": transitionErr.Allowed,
		})
		return
	}

	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Unhandled service error")
		respondWithError(w, code, "internal server error")
		return
	}
	respondWithError(w, code, err.Error())
}
