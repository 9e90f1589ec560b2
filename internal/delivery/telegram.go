package delivery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindd/pkg/logx"
)

// TelegramConfig configures the Telegram sender.
type TelegramConfig struct {
	Token string
	// Offline skips the getMe probe at construction (used by tests).
	Offline bool
}

type telegramSender struct {
	bot *tele.Bot
	log logx.Logger
}

// NewTelegram returns a Sender that delivers through the Telegram Bot API.
// Channel addresses are numeric chat ids.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (Sender, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  nil, // default http client
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &telegramSender{bot: bot, log: log}, nil
}

func (s *telegramSender) Send(ctx context.Context, address string, msg Message) error {
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram address %q is not a chat id: %w", address, err)
	}

	// telebot has no context-aware send; bound the call ourselves so a
	// stuck API call cannot hold a batch slot past the task timeout.
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(tele.ChatID(chatID), msg.Text(), &tele.SendOptions{
			DisableWebPagePreview: true,
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("telegram send to %d timed out", chatID)
	}
}
