package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activityEntries(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Activity" {
			out = append(out, e)
		}
	}
	return out
}

func TestLogActivityOncePerRequest(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	app := fiber.New()
	app.Use(LoggerMiddleware())
	app.Use(LogActivityMiddleware())
	app.Post("/api/students", func(c *fiber.Ctx) error {
		LogActivity(c, "CREATE", "students", "s1", fiber.Map{"name": "Kabir"})
		return c.SendStatus(fiber.StatusCreated)
	})
	app.Put("/api/students/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/api/reminders/send", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusConflict)
	})
	app.Get("/api/students", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		name     string
		method   string
		path     string
		logged   int
		action   string
		resource string
	}{
		{"handler logs its own activity", "POST", "/api/students", 1, "CREATE", "students"},
		{"middleware logs the rest", "PUT", "/api/students/s2", 1, "UPDATE", "students"},
		{"failed request", "POST", "/api/reminders/send", 0, "", ""},
		{"read only", "GET", "/api/students", 0, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hook.Reset()
			resp, err := app.Test(httptest.NewRequest(tc.method, tc.path, nil))
			require.NoError(t, err)
			assert.Less(t, resp.StatusCode, 500)

			entries := activityEntries(hook)
			require.Len(t, entries, tc.logged)
			if tc.logged == 1 {
				assert.Equal(t, tc.action, entries[0].Data["activity"])
				assert.Equal(t, tc.resource, entries[0].Data["resource"])
				assert.NotEmpty(t, entries[0].Data["request_id"])
			}
		})
	}
}
