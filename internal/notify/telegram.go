package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramSink delivers notifications as plain-text messages to one chat
// (optionally a forum thread). The bot is send-only; no poller is started.
type TelegramSink struct {
	bot      *tele.Bot
	chatID   int64
	threadID int
}

func NewTelegramSink(token string, chatID int64, threadID int) (*TelegramSink, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chatID: chatID, threadID: threadID}, nil
}

func (s *TelegramSink) Send(ctx context.Context, p Payload) error {
	_ = ctx // telebot does not thread contexts through sends

	text := fmt.Sprintf("[%s] %s\n%s %s\n%s",
		p.Host, p.ChatRoom, p.Sender, p.Timestamp, p.Content)

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if s.threadID != 0 {
		opts.ThreadID = s.threadID
	}
	_, err := s.bot.Send(&tele.Chat{ID: s.chatID}, text, opts)
	return err
}
