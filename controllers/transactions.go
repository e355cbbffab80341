package controllers

import (
	"fmt"
	"time"

	"tuitionflow/middleware"
	"tuitionflow/services"
	"tuitionflow/utils"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportArchiver keeps a copy of generated exports
type ExportArchiver interface {
	UploadExport(filename string, data []byte, now time.Time) (string, error)
	URL(key string) string
}

type TransactionController struct {
	dashboard *services.Dashboard
	archive   ExportArchiver
}

// NewTransactionController builds the ledger endpoints. archive may be nil.
func NewTransactionController(dashboard *services.Dashboard, archive ExportArchiver) *TransactionController {
	return &TransactionController{dashboard: dashboard, archive: archive}
}

// GetTransactions returns the payment history, newest first
func (tc *TransactionController) GetTransactions(c *fiber.Ctx) error {
	history := tc.dashboard.History()
	unsynced := 0
	for _, r := range history {
		if !r.SyncedToSheet {
			unsynced++
		}
	}
	return c.JSON(fiber.Map{
		"transactions": utils.PaymentRecords(history),
		"total":        len(history),
		"unsynced":     unsynced,
	})
}

func (tc *TransactionController) exportName(ext string) string {
	return fmt.Sprintf("payments_%s.%s", tc.dashboard.Today(), ext)
}

// ExportCSV downloads the history as CSV
func (tc *TransactionController) ExportCSV(c *fiber.Ctx) error {
	data, err := services.BuildCSV(tc.dashboard.History())
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Attachment(tc.exportName("csv"))
	return c.Send(data)
}

// ExportXLSX downloads the history as an Excel workbook
func (tc *TransactionController) ExportXLSX(c *fiber.Ctx) error {
	data, err := services.BuildXLSX(tc.dashboard.History())
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Attachment(tc.exportName("xlsx"))
	return c.Send(data)
}

// ArchiveExport uploads an export to S3 and returns its location
func (tc *TransactionController) ArchiveExport(c *fiber.Ctx) error {
	if tc.archive == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Export archive storage is not configured",
		})
	}

	format := c.Query("format", "csv")
	var (
		data []byte
		err  error
	)
	switch format {
	case "csv":
		data, err = services.BuildCSV(tc.dashboard.History())
	case "xlsx":
		data, err = services.BuildXLSX(tc.dashboard.History())
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "format must be csv or xlsx",
		})
	}
	if err != nil {
		return respondError(c, err)
	}

	name := tc.exportName(format)
	key, err := tc.archive.UploadExport(name, data, time.Now())
	if err != nil {
		return respondError(c, err)
	}

	middleware.LogActivity(c, "ARCHIVE", "transactions", key, fiber.Map{"bytes": len(data)})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":      key,
		"url":      tc.archive.URL(key),
		"filename": name,
	})
}

// RetrySync re-attempts the sheet append for one record
func (tc *TransactionController) RetrySync(c *fiber.Ctx) error {
	rec, err := tc.dashboard.RetrySync(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"record": rec})
}
