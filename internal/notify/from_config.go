package notify

import (
	"log/slog"

	"github.com/nextlevelbuilder/goremote/internal/config"
)

// FromConfig assembles a dispatcher from the notify configuration, skipping
// channels that are disabled or fail to initialize.
func FromConfig(cfg config.NotifyConfig) *Dispatcher {
	var senders []Sender

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		s, err := NewTelegramSender(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			slog.Warn("telegram notifications disabled", "error", err)
		} else {
			senders = append(senders, s)
		}
	}
	if cfg.Discord.Enabled && cfg.Discord.Token != "" && cfg.Discord.ChannelID != "" {
		s, err := NewDiscordSender(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			slog.Warn("discord notifications disabled", "error", err)
		} else {
			senders = append(senders, s)
		}
	}
	if cfg.Webhook.URL != "" {
		senders = append(senders, NewWebhookSender(cfg.Webhook.URL))
	}

	return NewDispatcher(cfg.RatePerHour, senders...)
}
