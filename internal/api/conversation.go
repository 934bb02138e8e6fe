package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jobtana1/langchain-chat/internal/export"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// SaveConversationRequest is the request body for saving a conversation.
type SaveConversationRequest struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Messages []types.Message `json:"messages"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []types.ConversationSummary `json:"conversations"`
	TotalCount    int                         `json:"total_count"`
}

// SearchResponse is the response for a content search.
type SearchResponse struct {
	Results []types.SearchHit `json:"results"`
}

// ExportRequest is the request body for exporting a conversation.
type ExportRequest struct {
	Format string `json:"format"`
}

// ImportResponse lists the ids written by an import.
type ImportResponse struct {
	IDs []string `json:"ids"`
}

// SaveConversation creates or replaces a conversation.
func (s *Server) SaveConversation(c echo.Context) error {
	var req SaveConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	id, err := s.store.Save(c.Request().Context(), req.ID, req.Messages, req.Title)
	if err != nil {
		return s.fail(c, err, "save conversation")
	}

	return c.JSON(http.StatusOK, IDResponse{ID: id})
}

// ListConversations lists all conversations, most recently updated first.
func (s *Server) ListConversations(c echo.Context) error {
	convs, err := s.store.List(c.Request().Context())
	if err != nil {
		return s.fail(c, err, "list conversations")
	}
	if convs == nil {
		convs = []types.ConversationSummary{}
	}

	return c.JSON(http.StatusOK, ListConversationsResponse{
		Conversations: convs,
		TotalCount:    len(convs),
	})
}

// SearchConversations searches message content for the q parameter.
func (s *Server) SearchConversations(c echo.Context) error {
	hits, err := s.store.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return s.fail(c, err, "search conversations")
	}
	if hits == nil {
		hits = []types.SearchHit{}
	}

	return c.JSON(http.StatusOK, SearchResponse{Results: hits})
}

// GetConversation gets a conversation with its messages.
func (s *Server) GetConversation(c echo.Context) error {
	conv, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err, "get conversation")
	}
	if conv == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
	}

	return c.JSON(http.StatusOK, conv)
}

// DeleteConversation deletes a conversation. Unknown ids succeed.
func (s *Server) DeleteConversation(c echo.Context) error {
	if err := s.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(c, err, "delete conversation")
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// ExportConversation writes a conversation to the export directory.
func (s *Server) ExportConversation(c echo.Context) error {
	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return s.fail(c, err, "export conversation")
	}

	path, err := s.exporter.Export(c.Request().Context(), c.Param("id"), format)
	if err != nil {
		return s.fail(c, err, "export conversation")
	}
	if path == "" {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
	}

	return c.JSON(http.StatusOK, PathResponse{Path: path})
}

// ImportConversations saves every conversation of a JSON export document.
// Nothing is written unless the whole document is valid.
func (s *Server) ImportConversations(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ids, err := export.Import(c.Request().Context(), s.store, data)
	if err != nil {
		return s.fail(c, err, "import conversations")
	}

	return c.JSON(http.StatusOK, ImportResponse{IDs: ids})
}
