package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/service/chat"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// IDResponse carries the id of a saved conversation.
type IDResponse struct {
	ID string `json:"id"`
}

// PathResponse carries the location of a written file.
type PathResponse struct {
	Path string `json:"path"`
}

var badRequestErrors = []error{
	conversation.ErrEmptyConversation,
	conversation.ErrInvalidRole,
	conversation.ErrInvalidImport,
	conversation.ErrUnsupportedFormat,
	conversation.ErrInvalidBackup,
	chat.ErrEmptyMessage,
}

// fail maps err to a status code, logs server-side failures and writes the
// error response.
func (s *Server) fail(c echo.Context, err error, action string) error {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
	}
	if errors.Is(err, chat.ErrCompletionUnavailable) {
		s.logger.WithError(err).Warn("completion endpoint unavailable")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "completion endpoint unavailable, try again later"})
	}
	s.logger.WithError(err).Error("failed to " + action)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to " + action})
}
