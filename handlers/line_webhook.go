package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"tuitionflow/services"
	"tuitionflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	log "github.com/sirupsen/logrus"
)

const (
	linkInstructions = "Send the parent phone number registered with the tuition (with country code) to receive fee reminders here."
	linkNotFound     = "No student is registered with that phone number. Please check the number and try again."
)

// ParentLinker attaches a LINE user to the students of a parent phone
type ParentLinker interface {
	LinkLineUser(ctx context.Context, phone, userID string) ([]string, error)
}

// Replier answers a webhook event
type Replier interface {
	ReplyText(ctx context.Context, replyToken, text string) error
}

// LineWebhookHandler lets parents opt in to LINE reminders by messaging their phone number to the bot
type LineWebhookHandler struct {
	secret  string
	linker  ParentLinker
	replier Replier
}

func NewLineWebhookHandler(secret string, linker ParentLinker, replier Replier) *LineWebhookHandler {
	return &LineWebhookHandler{secret: secret, linker: linker, replier: replier}
}

// Handle receives webhook events
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	signature := c.Get("X-Line-Signature")
	if signature == "" {
		log.Warn("LINE webhook: missing signature header")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if !validateSignature(h.secret, c.Body(), signature) {
		log.WithField("ip", c.IP()).Warn("LINE webhook: signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	// Answer 200 first; LINE retries slow webhooks
	body := append([]byte(nil), c.Body()...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.process(ctx, body)
	}()

	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) process(ctx context.Context, body []byte) {
	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &webhook); err != nil {
		log.WithError(err).Error("LINE webhook: failed to parse events")
		return
	}

	for _, event := range webhook.Events {
		if event.Source == nil || event.Source.UserID == "" {
			continue
		}
		switch event.Type {
		case linebot.EventTypeFollow:
			h.reply(ctx, event.ReplyToken, linkInstructions)
		case linebot.EventTypeMessage:
			msg, ok := event.Message.(*linebot.TextMessage)
			if !ok {
				continue
			}
			h.reply(ctx, event.ReplyToken, h.link(ctx, msg.Text, event.Source.UserID))
		}
	}
}

// link answers one text message from a parent
func (h *LineWebhookHandler) link(ctx context.Context, text, userID string) string {
	phone := utils.NormalizePhone(text)
	if !utils.IsValidPhone(phone) {
		return linkInstructions
	}

	names, err := h.linker.LinkLineUser(ctx, phone, userID)
	switch {
	case errors.Is(err, services.ErrStudentNotFound):
		return linkNotFound
	case err != nil:
		log.WithError(err).Error("LINE webhook: linking parent failed")
		return "Something went wrong, please try again later."
	}

	log.WithFields(log.Fields{"students": names}).Info("LINE parent linked")
	return "Linked! Fee reminders for " + strings.Join(names, ", ") + " will also arrive here."
}

func (h *LineWebhookHandler) reply(ctx context.Context, token, text string) {
	if token == "" || h.replier == nil {
		return
	}
	if err := h.replier.ReplyText(ctx, token, text); err != nil {
		log.WithError(err).Warn("LINE webhook: reply failed")
	}
}

// computeSignature returns the base64 HMAC-SHA256 LINE sends in X-Line-Signature
func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
