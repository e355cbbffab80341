package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16"

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Use(LoggerMiddleware())
	app.Get("/private", JWTMiddleware(testSecret), func(c *fiber.Ctx) error {
		claims, err := GetCurrentClaims(c)
		if err != nil {
			return err
		}
		return c.SendString(claims.Subject)
	})
	return app
}

func TestJWTMiddleware(t *testing.T) {
	app := protectedApp()
	token, expires, err := GenerateToken(testSecret, time.Hour)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"not bearer", "Token " + token, fiber.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/private", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
		})
	}
}

func TestParseTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	token, _, err := GenerateToken("another-secret-value", time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)

	expired, _, err := GenerateToken(testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.Error(t, err)
}
