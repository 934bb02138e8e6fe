package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jobtana1/langchain-chat/internal/service/chat"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// SendMessageRequest is the request body for one chat turn.
//
// When Messages is empty the history is loaded from ConversationID, or a new
// session is started from the configured system prompt.
type SendMessageRequest struct {
	ConversationID string          `json:"conversation_id"`
	Title          string          `json:"title"`
	Messages       []types.Message `json:"messages"`
	Content        string          `json:"content"`
}

// SendMessageResponse carries the reply and the full saved history.
type SendMessageResponse struct {
	ConversationID string          `json:"conversation_id"`
	Message        types.Message   `json:"message"`
	Messages       []types.Message `json:"messages"`
}

// SendMessage handles POST /chat
func (s *Server) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content is required"})
	}

	ctx := c.Request().Context()

	var sess *chat.Session
	switch {
	case len(req.Messages) > 0:
		sess = &chat.Session{ConversationID: req.ConversationID, Messages: req.Messages}
	case req.ConversationID != "":
		resumed, err := s.chatService.Resume(ctx, req.ConversationID)
		if err != nil {
			return s.fail(c, err, "load conversation")
		}
		sess = resumed
		if len(sess.Messages) == 0 {
			sess.Messages = chat.NewSession(s.systemPrompt).Messages
		}
	default:
		sess = chat.NewSession(s.systemPrompt)
	}
	sess.Title = req.Title

	reply, err := s.chatService.Send(ctx, sess, req.Content)
	if err != nil {
		return s.fail(c, err, "process message")
	}

	return c.JSON(http.StatusOK, SendMessageResponse{
		ConversationID: sess.ConversationID,
		Message:        *reply,
		Messages:       sess.Messages,
	})
}
