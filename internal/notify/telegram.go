package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"remindly/internal/reminder"
)

type telegramSender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// TelegramNotifier posts every user's reminders to one operator chat. It is
// an audit feed for whoever runs the service, not per-user delivery; users
// read their own notifications from the in-app inbox. Sends are paced by a
// token bucket so a large due batch does not trip Telegram flood limits.
type TelegramNotifier struct {
	bot     telegramSender
	chat    *tele.Chat
	limiter *rate.Limiter
}

func NewTelegram(token string, chatID int64, ratePerSec int) (*TelegramNotifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: 8 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegram(b, chatID, ratePerSec), nil
}

func newTelegram(bot telegramSender, chatID int64, ratePerSec int) *TelegramNotifier {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &TelegramNotifier{
		bot:     bot,
		chat:    &tele.Chat{ID: chatID},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, r reminder.Reminder) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return deliveryErr("telegram", err)
	}
	if _, err := n.bot.Send(n.chat, telegramText(r), &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return deliveryErr("telegram", err)
	}
	return nil
}

func telegramText(r reminder.Reminder) string {
	return fmt.Sprintf("⏰ Reminder: %s\n%s", r.Title, Body(r))
}
