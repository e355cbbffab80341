package controllers

import (
	"tuitionflow/middleware"
	"tuitionflow/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub    *websocket.Hub
	secret string
}

func NewWebSocketController(hub *websocket.Hub, secret string) *WebSocketController {
	return &WebSocketController{hub: hub, secret: secret}
}

// RequireUpgrade rejects plain HTTP requests and upgrades without a valid ?token=
func (wsc *WebSocketController) RequireUpgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing token",
		})
	}
	if _, err := middleware.ParseToken(wsc.secret, token); err != nil {
		logrus.WithError(err).Warn("WebSocket connection rejected: invalid token")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token",
		})
	}
	return c.Next()
}

// WebSocketHandler attaches the connection to the hub until the dashboard disconnects
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		logrus.WithField("ip", c.RemoteAddr().String()).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c)
	})
}

// GetWebSocketStats returns WebSocket connection statistics
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
