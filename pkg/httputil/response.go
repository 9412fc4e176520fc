package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/validator"
)

// RequestIDKey is the gin context key the request id middleware sets.
const RequestIDKey = "request_id"

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RespondWithSuccess sends a 200 response
func RespondWithSuccess(c *gin.Context, data interface{}, message string) {
	RespondWithStatus(c, http.StatusOK, data, message)
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}, message string) {
	RespondWithStatus(c, http.StatusCreated, data, message)
}

func RespondWithStatus(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation, errors.KindConflict:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError sends an error response. Field violations travel in data.
// Unclassified errors are logged and reported with a generic message.
func RespondWithError(c *gin.Context, err error) {
	var fieldErrs validator.FieldErrors
	if errors.As(err, &fieldErrs) {
		err = errors.Validation(fieldErrs.Error(), fieldErrs)
	}

	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	status := StatusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	resp := Response{
		Success: false,
		Error:   appErr.Message,
	}
	if fe, ok := appErr.Details.(validator.FieldErrors); ok {
		resp.Data = fe
	}
	c.JSON(status, resp)
}

// Abort is RespondWithError for middleware: it stops the handler chain.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   message,
	})
}
