package handlers

import (
	"errors"
	"net/http"

	"matsched/internal/domain"
	"matsched/internal/http/middleware"
	"matsched/internal/services"
	"matsched/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.JSON(status, ErrorResponse{Error: message, Code: code, RequestID: middleware.GetRequestID(c)})
}

// RespondDomainError maps domain errors to HTTP responses. The code is the
// wrapped reason when there is one, so clients can branch on schedule_full
// and friends.
func RespondDomainError(c *gin.Context, err error) {
	code := domain.ReasonCode(err)
	switch {
	case domain.IsForbidden(err):
		respondError(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, orDefault(code, "validation_error"), err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, orDefault(code, "not_found"), err.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, orDefault(code, "conflict"), err.Error())
	case errors.Is(err, domain.ErrPaymentInitiation):
		respondError(c, http.StatusBadGateway, code, "payment prompt could not be sent, please retry")
	default:
		_ = c.Error(err)
		utils.LogEvent(middleware.GetRequestID(c), "http", "internal_error", err.Error())
		respondError(c, http.StatusInternalServerError, orDefault(code, "internal_error"), "internal error")
	}
}

func orDefault(code, def string) string {
	if code == "" {
		return def
	}
	return code
}
