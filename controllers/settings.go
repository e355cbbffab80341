package controllers

import (
	"html"

	"tuitionflow/middleware"
	"tuitionflow/services"

	"github.com/gofiber/fiber/v2"
)

type SettingsController struct {
	dashboard *services.Dashboard
}

type updateSheetsRequest struct {
	ClientID      string `json:"clientId"`
	SpreadsheetID string `json:"spreadsheetId"`
}

func NewSettingsController(dashboard *services.Dashboard) *SettingsController {
	return &SettingsController{dashboard: dashboard}
}

// GetSheetsSetup returns the current sheet settings and the URIs the owner
// must whitelist in their Google OAuth client
func (sc *SettingsController) GetSheetsSetup(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"settings": sc.dashboard.SheetConfig(),
		"setup":    sc.dashboard.SheetsSetup(),
	})
}

// UpdateSheets saves the client and spreadsheet ids
func (sc *SettingsController) UpdateSheets(c *fiber.Ctx) error {
	var req updateSheetsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	cfg, err := sc.dashboard.SaveSheetConfig(c.UserContext(), req.ClientID, req.SpreadsheetID)
	if err != nil {
		return respondError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "settings", "sheets", fiber.Map{"spreadsheet_id": cfg.SpreadsheetID})
	return c.JSON(fiber.Map{
		"message":  "Sheet settings saved",
		"settings": cfg,
	})
}

// GetSheetsAuthURL returns the Google consent URL
func (sc *SettingsController) GetSheetsAuthURL(c *fiber.Ctx) error {
	url, err := sc.dashboard.SheetsAuthURL()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// SheetsCallback is where Google redirects after consent. It is opened in the
// owner's browser, so it answers with a page rather than JSON.
func (sc *SettingsController) SheetsCallback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		return callbackPage(c, fiber.StatusBadRequest, "Google Sheets was not connected: "+reason)
	}
	code := c.Query("code")
	if code == "" {
		return callbackPage(c, fiber.StatusBadRequest, "Missing authorization code")
	}

	cfg, err := sc.dashboard.CompleteSheetsAuth(c.UserContext(), c.Query("state"), code)
	if err != nil {
		return callbackPage(c, statusFor(err), "Google Sheets was not connected: "+err.Error())
	}

	middleware.LogActivity(c, "CONNECT", "settings", "sheets", fiber.Map{"spreadsheet_id": cfg.SpreadsheetID})
	return callbackPage(c, fiber.StatusOK, "Google Sheets connected. You can close this window.")
}

// DisconnectSheets forgets the stored token
func (sc *SettingsController) DisconnectSheets(c *fiber.Ctx) error {
	cfg, err := sc.dashboard.DisconnectSheets(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":  "Google Sheets disconnected",
		"settings": cfg,
	})
}

func callbackPage(c *fiber.Ctx, status int, message string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).SendString("<!doctype html><html><body><p>" + html.EscapeString(message) + "</p></body></html>")
}
