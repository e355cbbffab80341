package controllers

import (
	"errors"

	"tuitionflow/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// statusFor maps service sentinels onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrStudentNotFound), errors.Is(err, services.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrQueueBusy), errors.Is(err, services.ErrNoDraft):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrSheetNotConfigured), errors.Is(err, services.ErrConsentRequired):
		return fiber.StatusPreconditionFailed
	case services.IsUpstreamFailure(err):
		return fiber.StatusBadGateway
	case errors.Is(err, services.ErrBackupDisabled):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes the {"error": ...} body for err
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Path(),
			"method": c.Method(),
		}).Error("Request failed")
		message = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// draftFailed reports a run that produced no draft only because every
// student in it failed to draft.
func draftFailed(res *services.QueueResult) bool {
	return res != nil && res.Draft == nil && len(res.Failures) > 0
}

// respondQueue writes a queue result. A run that drafted nothing because the
// model failed is a 502 carrying the failed names; the queue has already moved on.
func respondQueue(c *fiber.Ctx, res *services.QueueResult) error {
	if draftFailed(res) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    "Failed to draft message for " + res.Failures[0].StudentName,
			"failures": res.Failures,
			"queue":    res.Queue,
		})
	}
	return c.JSON(res)
}
