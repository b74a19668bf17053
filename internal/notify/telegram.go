package notify

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramSender posts notifications to a Telegram chat.
type TelegramSender struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegramSender validates the token by constructing the bot client.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, title, body string) error {
	text := title
	if body != "" {
		text += "\n" + body
	}
	_, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(t.chatID), text))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
