package services

import "errors"

var (
	// ErrQueueBusy is returned while a draft is being generated.
	ErrQueueBusy = errors.New("a message is already being drafted")
	// ErrNoDraft is returned by send/skip when nothing is waiting for confirmation.
	ErrNoDraft            = errors.New("no drafted message to act on")
	ErrStudentNotFound    = errors.New("student not found")
	ErrRecordNotFound     = errors.New("payment record not found")
	ErrConsentRequired    = errors.New("google sheets consent required")
	ErrSheetNotConfigured = errors.New("google sheets is not configured")
	ErrValidation         = errors.New("validation failed")
	ErrBackupDisabled     = errors.New("backups are disabled: S3_BUCKET_NAME is not set")
	// ErrCommandFailed wraps any failure to interpret a free-text command.
	ErrCommandFailed = errors.New("failed to process command")
)
