package controllers

import (
	"crypto/subtle"
	"time"

	"tuitionflow/middleware"
	"tuitionflow/utils"

	"github.com/gofiber/fiber/v2"
)

type AuthController struct {
	secret       string
	ttl          time.Duration
	passwordHash string
	password     string
}

// NewAuthController checks logins against a bcrypt hash, or a plain password
// when no hash is configured (development only; production config requires the hash).
func NewAuthController(secret string, ttl time.Duration, passwordHash, password string) *AuthController {
	return &AuthController{secret: secret, ttl: ttl, passwordHash: passwordHash, password: password}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Password string `json:"password"`
}

func (ac *AuthController) checkPassword(password string) bool {
	if ac.passwordHash != "" {
		return utils.CheckPassword(password, ac.passwordHash) == nil
	}
	if ac.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(ac.password)) == 1
}

// Login authenticates the owner and returns a JWT token
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password is required",
		})
	}

	if !ac.checkPassword(req.Password) {
		middleware.LogActivity(c, "LOGIN_FAILED", "auth", "", nil)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, expires, err := middleware.GenerateToken(ac.secret, ac.ttl)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	middleware.LogActivity(c, "LOGIN", "auth", "", nil)
	return c.JSON(fiber.Map{
		"message":    "Login successful",
		"token":      token,
		"expires_at": expires,
	})
}

// GetProfile returns the authenticated session
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Not authenticated",
		})
	}
	return c.JSON(fiber.Map{
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Time,
	})
}
