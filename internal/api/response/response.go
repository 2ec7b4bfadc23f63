// Package response holds the JSON envelopes written by the HTTP handlers.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// SuccessResponse wraps a successful payload.
type SuccessResponse struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
} // @name SuccessResponse

// ErrorResponse is returned for every failed request. TraceID echoes the request ID.
type ErrorResponse struct {
	Error   string `json:"error" example:"validation"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
} // @name ErrorResponse

// ValidationError describes one rejected field of a request body.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
} // @name ValidationError

func Success(c *gin.Context, statusCode int, data any, message string) {
	c.JSON(statusCode, SuccessResponse{Data: data, Message: message})
}

func Error(c *gin.Context, statusCode int, err string, details any) {
	c.JSON(statusCode, ErrorResponse{
		Error:   err,
		Details: details,
		TraceID: GetRequestID(c),
	})
}

func OK(c *gin.Context, data any) {
	Success(c, http.StatusOK, data, "")
}

func Created(c *gin.Context, data any, message string) {
	Success(c, http.StatusCreated, data, message)
}

func BadRequest(c *gin.Context, err string, details any) {
	Error(c, http.StatusBadRequest, err, details)
}

// ValidationErrors sends a 400 listing the rejected fields.
func ValidationErrors(c *gin.Context, errs []ValidationError) {
	BadRequest(c, "validation failed", errs)
}

func Forbidden(c *gin.Context, err string) {
	Error(c, http.StatusForbidden, err, nil)
}

func NotFound(c *gin.Context, err string) {
	Error(c, http.StatusNotFound, err, nil)
}

func RequestEntityTooLarge(c *gin.Context, err string, limit int64) {
	Error(c, http.StatusRequestEntityTooLarge, err, gin.H{"limit_bytes": limit})
}

func InternalServerError(c *gin.Context, err string) {
	Error(c, http.StatusInternalServerError, err, nil)
}

// ServiceUnavailable is sent when a backing store has no live connection.
func ServiceUnavailable(c *gin.Context, err string) {
	Error(c, http.StatusServiceUnavailable, err, nil)
}

// GetRequestID returns the request ID set by the middleware, or a fresh one.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return uuid.New().String()
}
