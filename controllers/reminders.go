package controllers

import (
	"tuitionflow/middleware"
	"tuitionflow/services"

	"github.com/gofiber/fiber/v2"
)

type ReminderController struct {
	dashboard *services.Dashboard
}

func NewReminderController(dashboard *services.Dashboard) *ReminderController {
	return &ReminderController{dashboard: dashboard}
}

// GetQueue returns the reminder queue and the draft under preview
func (rc *ReminderController) GetQueue(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"queue": rc.dashboard.Queue()})
}

// StartBatch queues every pending or overdue student
func (rc *ReminderController) StartBatch(c *fiber.Ctx) error {
	res, err := rc.dashboard.StartReminders(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respondQueue(c, res)
}

// DraftForStudent drafts one message, replacing any queue
func (rc *ReminderController) DraftForStudent(c *fiber.Ctx) error {
	res, err := rc.dashboard.DraftFor(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respondQueue(c, res)
}

// Send confirms the draft and returns the WhatsApp link to open. Drafting
// failures for the following students ride along in next.failures.
func (rc *ReminderController) Send(c *fiber.Ctx) error {
	res, err := rc.dashboard.Send(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "SEND", "reminders", res.Sent.StudentID, fiber.Map{
		"type":      res.Sent.Type,
		"line_sent": res.LineSent,
	})
	return c.JSON(res)
}

// Skip drops the draft without sending and moves on
func (rc *ReminderController) Skip(c *fiber.Ctx) error {
	res, err := rc.dashboard.Skip(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Cancel clears the queue; an in-flight draft is discarded when it lands
func (rc *ReminderController) Cancel(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Reminder queue cleared",
		"queue":   rc.dashboard.Cancel(),
	})
}
