package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/export"
	"github.com/jobtana1/langchain-chat/internal/service"
	"github.com/jobtana1/langchain-chat/internal/service/chat"
)

// Server holds API dependencies.
type Server struct {
	authService  *service.AuthService
	store        conversation.Store
	archiver     conversation.Archiver
	exporter     *export.Exporter
	chatService  *chat.Service
	systemPrompt string
	logger       *logrus.Logger
}

// Options carries the optional parts of a Server.
type Options struct {
	// AuthService enables bearer authentication when non-nil.
	AuthService *service.AuthService
	// Archiver enables the backup and restore routes when non-nil.
	Archiver conversation.Archiver
	// SystemPrompt seeds new chat sessions.
	SystemPrompt string
}

// NewServer creates a new API server.
func NewServer(store conversation.Store, exporter *export.Exporter, chatService *chat.Service, logger *logrus.Logger, opts Options) *Server {
	return &Server{
		authService:  opts.AuthService,
		store:        store,
		archiver:     opts.Archiver,
		exporter:     exporter,
		chatService:  chatService,
		systemPrompt: opts.SystemPrompt,
		logger:       logger,
	}
}

// Register mounts all routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	var mw []echo.MiddlewareFunc
	if s.authService != nil {
		mw = append(mw, s.AuthMiddleware)
	}

	conv := e.Group("/conversations", mw...)
	conv.POST("", s.SaveConversation)
	conv.GET("", s.ListConversations)
	conv.GET("/search", s.SearchConversations)
	conv.POST("/import", s.ImportConversations)
	conv.GET("/:id", s.GetConversation)
	conv.DELETE("/:id", s.DeleteConversation)
	conv.POST("/:id/export", s.ExportConversation)

	e.POST("/chat", s.SendMessage, mw...)

	if s.archiver != nil {
		admin := e.Group("/admin", mw...)
		admin.POST("/backups", s.CreateBackup)
		admin.GET("/backups", s.ListBackups)
		admin.POST("/restore", s.RestoreBackup)
	}
}
