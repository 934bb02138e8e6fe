package api

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/jobtana1/langchain-chat/internal/types"
)

// RestoreRequest names the backup to restore.
type RestoreRequest struct {
	Path string `json:"path"`
}

// ListBackupsResponse lists the available backups, newest first.
type ListBackupsResponse struct {
	Backups []types.BackupInfo `json:"backups"`
}

// RestoreResponse carries the safety backup taken before the restore.
type RestoreResponse struct {
	Restored string           `json:"restored"`
	Safety   types.BackupInfo `json:"safety"`
}

// CreateBackup writes a backup of the whole store.
func (s *Server) CreateBackup(c echo.Context) error {
	info, err := s.archiver.Backup(c.Request().Context())
	if err != nil {
		return s.fail(c, err, "create backup")
	}

	return c.JSON(http.StatusCreated, info)
}

// ListBackups lists the backups in the backup directory.
func (s *Server) ListBackups(c echo.Context) error {
	backups, err := s.archiver.ListBackups()
	if err != nil {
		return s.fail(c, err, "list backups")
	}
	if backups == nil {
		backups = []types.BackupInfo{}
	}

	return c.JSON(http.StatusOK, ListBackupsResponse{Backups: backups})
}

// RestoreBackup replaces the store with one of the listed backups. Arbitrary
// server paths are refused.
func (s *Server) RestoreBackup(c echo.Context) error {
	var req RestoreRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	backups, err := s.archiver.ListBackups()
	if err != nil {
		return s.fail(c, err, "list backups")
	}
	known := slices.ContainsFunc(backups, func(b types.BackupInfo) bool {
		return b.Path == req.Path
	})
	if !known {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown backup"})
	}

	safety, err := s.archiver.Restore(c.Request().Context(), req.Path)
	if err != nil {
		return s.fail(c, err, "restore backup")
	}

	s.logger.WithField("path", req.Path).Info("backup restored via API")
	return c.JSON(http.StatusOK, RestoreResponse{Restored: req.Path, Safety: *safety})
}
