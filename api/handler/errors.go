package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/engine"
	"github.com/use-agent/mediatap/message"
	"github.com/use-agent/mediatap/models"
)

// toAPIError classifies err into a typed APIError.
func toAPIError(err error) *models.APIError {
	var apiErr *models.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, message.ErrUnknownMessage):
		return models.NewAPIError(models.ErrCodeUnknownMessage, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAPIError(models.ErrCodeTimeout, "capture timed out", err)
	case errors.Is(err, engine.ErrProxyUnsupported):
		return models.NewAPIError(models.ErrCodeInvalidInput, err.Error(), err)
	case errors.Is(err, engine.ErrDisallowed):
		return models.NewAPIError(models.ErrCodeNavigation, err.Error(), err)
	default:
		return models.NewAPIError(models.ErrCodeInternal, err.Error(), err)
	}
}

// respondError writes err as a structured JSON error response.
func respondError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	c.JSON(mapErrorToStatus(apiErr), models.ErrorResponse{
		Success: false,
		Error:   apiErr.ToDetail(),
	})
}

// badRequest aborts with INVALID_INPUT.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.Failure(models.ErrCodeInvalidInput, msg))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.APIError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeUnknownMessage:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
