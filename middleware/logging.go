package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the id attached to every request and its log lines.
const RequestIDHeader = "X-Request-ID"

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set(RequestIDHeader, requestID)

		// Process request
		err := c.Next()

		// Log request
		duration := time.Since(start)
		status := c.Response().StatusCode()

		entry := logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   duration.String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		})
		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}

		return err
	}
}

const activityLoggedKey = "activity_logged"

// LogActivity records an owner action on a resource. A handler that calls it
// replaces the generic entry LogActivityMiddleware would write.
func LogActivity(c *fiber.Ctx, action, resource, resourceID string, details interface{}) {
	c.Locals(activityLoggedKey, true)
	fields := logrus.Fields{
		"activity":    action,
		"resource":    resource,
		"resource_id": resourceID,
		"ip":          c.IP(),
	}
	if id, ok := c.Locals("request_id").(string); ok {
		fields["request_id"] = id
	}
	if details != nil {
		fields["details"] = details
	}
	logrus.WithFields(fields).Info("Activity")
}

// LogActivityMiddleware logs mutating requests whose handler did not log its own activity
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		default:
			return c.Next()
		}
		if strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()
		if logged, _ := c.Locals(activityLoggedKey).(bool); logged {
			return err
		}

		// /api/<resource>/...
		pathParts := strings.Split(strings.Trim(c.Path(), "/"), "/")
		var resource string
		if len(pathParts) >= 2 {
			resource = pathParts[1]
		}

		// Log only if request was successful
		if c.Response().StatusCode() < 400 {
			LogActivity(c, action, resource, c.Params("id"), nil)
		}

		return err
	}
}
