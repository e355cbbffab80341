package controllers

import (
	"tuitionflow/middleware"
	"tuitionflow/services"

	"github.com/gofiber/fiber/v2"
)

type BackupController struct {
	backup *services.BackupService
}

// NewBackupController serves on-demand backups; backup is nil when S3 is not configured.
func NewBackupController(backup *services.BackupService) *BackupController {
	return &BackupController{backup: backup}
}

// CreateBackup zips the current state and uploads it
func (bc *BackupController) CreateBackup(c *fiber.Ctx) error {
	if bc.backup == nil {
		return respondError(c, services.ErrBackupDisabled)
	}
	info, err := bc.backup.Run(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "BACKUP", "backups", info.Key, nil)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Backup uploaded",
		"backup":  info,
	})
}
