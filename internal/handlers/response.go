package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tenancy-service/internal/services"
)

var logger = logrus.NewEntry(logrus.StandardLogger()).WithField("component", "handlers")

// SetLogger replaces the logger used for handler errors
func SetLogger(l *logrus.Entry) {
	logger = l.WithField("component", "handlers")
}

// ErrorResponse sends a standardized error response
// Internal errors are logged but not exposed to clients
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	requestID := getRequestID(c)

	// Log internal error details
	if err != nil {
		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     statusCode,
		}).WithError(err)
		if statusCode >= http.StatusInternalServerError {
			entry.Error(message)
		} else {
			entry.Debug(message)
		}
	}

	// Send user-friendly response (don't expose internal errors)
	response := gin.H{
		"success":    false,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	// Only include error details in development mode
	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}

	c.JSON(statusCode, response)
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	requestID := getRequestID(c)

	response := gin.H{
		"success":    true,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if data != nil {
		response["data"] = data
	}

	c.JSON(statusCode, response)
}

// ValidationErrorResponse sends a validation error response
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	requestID := getRequestID(c)

	response := gin.H{
		"success":    false,
		"message":    "Validation failed",
		"errors":     errors,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusBadRequest, response)
}

// ServiceErrorResponse maps a service error to its HTTP status
func ServiceErrorResponse(c *gin.Context, fallbackMessage string, err error) {
	if validationErr, ok := services.IsValidationError(err); ok {
		errs := map[string]string{validationErr.Field: validationErr.Message}
		if len(validationErr.Suggestions) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success":     false,
				"message":     "Validation failed",
				"errors":      errs,
				"suggestions": validationErr.Suggestions,
				"request_id":  getRequestID(c),
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		ValidationErrorResponse(c, errs)
		return
	}
	if notFoundErr, ok := services.IsNotFoundError(err); ok {
		ErrorResponse(c, http.StatusNotFound, capitalize(notFoundErr.Error()), nil)
		return
	}
	if conflictErr, ok := services.IsConflictError(err); ok {
		ErrorResponse(c, http.StatusConflict, capitalize(conflictErr.Message), nil)
		return
	}
	if forbiddenErr, ok := services.IsForbiddenError(err); ok {
		ErrorResponse(c, http.StatusForbidden, capitalize(forbiddenErr.Error()), nil)
		return
	}
	if errors.Is(err, services.ErrUnauthenticated) {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated", nil)
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, fallbackMessage, err)
}

// getRequestID retrieves or generates a request ID
func getRequestID(c *gin.Context) string {
	// Check if request ID was set by middleware
	if requestID := c.GetString("request_id"); requestID != "" {
		return requestID
	}
	// Fallback to X-Request-ID header
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	return time.Now().Format("20060102150405")
}

// parsePagination reads page and page_size query params with the same bounds the repositories apply
func parsePagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

func paginationMeta(page, pageSize int, total int64) map[string]interface{} {
	return map[string]interface{}{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
