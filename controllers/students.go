package controllers

import (
	"tuitionflow/middleware"
	"tuitionflow/models"
	"tuitionflow/services"
	"tuitionflow/utils"

	"github.com/gofiber/fiber/v2"
)

var rosterExtensions = []string{"csv", "xlsx"}

type StudentController struct {
	dashboard   *services.Dashboard
	maxFileSize int64
}

func NewStudentController(dashboard *services.Dashboard, maxFileSize int64) *StudentController {
	return &StudentController{dashboard: dashboard, maxFileSize: maxFileSize}
}

func (sc *StudentController) view(s models.Student) utils.StudentView {
	return utils.StudentView{Student: s, NextDueDate: sc.dashboard.NextDueDate(s)}
}

// GetStudents returns the roster, optionally filtered by status
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	students := sc.dashboard.Students()

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParsePaymentStatus(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid status filter",
			})
		}
		filtered := students[:0:0]
		for _, s := range students {
			if s.Status == status {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}

	return c.JSON(fiber.Map{
		"students": utils.ToStudentViews(students, sc.dashboard.NextDueDate),
		"total":    len(students),
	})
}

// GetStudent returns a specific student by ID
func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	s, err := sc.dashboard.Student(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"student": sc.view(s)})
}

// CreateStudent adds a student to the roster
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var s models.Student
	if err := c.BodyParser(&s); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	created, err := sc.dashboard.CreateStudent(c.UserContext(), s)
	if err != nil {
		return respondError(c, err)
	}

	middleware.LogActivity(c, "CREATE", "students", created.ID, fiber.Map{"name": created.Name})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student created successfully",
		"student": sc.view(created),
	})
}

// UpdateStudent replaces a student's editable fields. Marking a student PAID
// records a manual payment.
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	var s models.Student
	if err := c.BodyParser(&s); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	s.ID = c.Params("id")

	updated, record, err := sc.dashboard.UpdateStudent(c.UserContext(), s)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{
		"message": "Student updated successfully",
		"student": sc.view(updated),
	}
	if record != nil {
		resp["record"] = record
	}
	return c.JSON(resp)
}

// RefreshStatuses re-derives every status for today
func (sc *StudentController) RefreshStatuses(c *fiber.Ctx) error {
	changed, err := sc.dashboard.RefreshStatuses(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"changed":  changed,
		"students": utils.ToStudentViews(sc.dashboard.Students(), sc.dashboard.NextDueDate),
	})
}

// ImportStudents appends a CSV or XLSX roster upload
func (sc *StudentController) ImportStudents(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required (multipart field 'file')",
		})
	}
	if sc.maxFileSize > 0 && fh.Size > sc.maxFileSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "File too large",
		})
	}
	if !utils.IsValidFileExtension(fh.Filename, rosterExtensions) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only .csv and .xlsx files are supported",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot open uploaded file",
		})
	}
	defer f.Close()

	parsed, rowErrs, err := services.ParseRoster(fh.Filename, f)
	if err != nil {
		return respondError(c, err)
	}
	if len(parsed) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":     "No valid rows found",
			"rowErrors": rowErrs,
		})
	}

	added, err := sc.dashboard.ImportStudents(c.UserContext(), parsed)
	if err != nil {
		return respondError(c, err)
	}

	middleware.LogActivity(c, "IMPORT", "students", "", fiber.Map{"count": len(added), "skipped": len(rowErrs)})
	return c.JSON(fiber.Map{
		"imported":  len(added),
		"students":  utils.ToStudentViews(added, sc.dashboard.NextDueDate),
		"rowErrors": rowErrs,
	})
}

// GetStats returns the dashboard aggregates
func (sc *StudentController) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"stats": sc.dashboard.Stats(),
		"today": sc.dashboard.Today(),
	})
}
