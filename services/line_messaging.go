package services

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/linebot"
	log "github.com/sirupsen/logrus"
)

// LinePusher delivers a drafted message to a parent's LINE account.
type LinePusher interface {
	Enabled() bool
	PushText(ctx context.Context, userID, text string) error
}

// LineMessagingService wraps the LINE Messaging API client
type LineMessagingService struct {
	Bot *linebot.Client
}

// NewLineMessagingService returns a disabled service when credentials are missing.
func NewLineMessagingService(channelSecret, channelToken string) (*LineMessagingService, error) {
	if channelSecret == "" || channelToken == "" {
		log.Warn("LINE Messaging API disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
		return &LineMessagingService{}, nil
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, fmt.Errorf("cannot create LINE bot client: %w", err)
	}
	return &LineMessagingService{Bot: bot}, nil
}

func (s *LineMessagingService) Enabled() bool {
	return s != nil && s.Bot != nil
}

// PushText sends a plain text message to a LINE user.
func (s *LineMessagingService) PushText(ctx context.Context, userID, text string) error {
	if !s.Enabled() {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	if _, err := s.Bot.PushMessage(userID, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %w", err)
	}
	return nil
}

// ReplyText answers a webhook event through its reply token.
func (s *LineMessagingService) ReplyText(ctx context.Context, replyToken, text string) error {
	if !s.Enabled() {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	if _, err := s.Bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("LINE reply failed: %w", err)
	}
	return nil
}
