package controllers

import (
	"tuitionflow/middleware"
	"tuitionflow/services"

	"github.com/gofiber/fiber/v2"
)

type CommandController struct {
	dashboard *services.Dashboard
}

func NewCommandController(dashboard *services.Dashboard) *CommandController {
	return &CommandController{dashboard: dashboard}
}

// CommandRequest is a free-text instruction such as "Anshu fee is clear" or "remind everyone"
type CommandRequest struct {
	Text string `json:"text"`
}

// RunCommand interprets a free-text command against the roster
func (cc *CommandController) RunCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	res, err := cc.dashboard.HandleCommand(c.UserContext(), req.Text)
	if err != nil {
		return respondError(c, err)
	}

	if res.Student != nil {
		middleware.LogActivity(c, "COMMAND", "students", res.Student.ID, fiber.Map{"status": res.Student.Status})
	}
	if draftFailed(res.Queue) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  "Failed to draft message for " + res.Queue.Failures[0].StudentName,
			"result": res,
		})
	}
	return c.JSON(res)
}
