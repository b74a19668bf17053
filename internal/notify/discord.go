package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender posts notifications to a Discord channel via the REST API;
// no gateway connection is opened.
type DiscordSender struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordSender(token, channelID string) (*DiscordSender, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("init discord client: %w", err)
	}
	return &DiscordSender{session: session, channelID: channelID}, nil
}

func (d *DiscordSender) Name() string { return "discord" }

func (d *DiscordSender) Send(ctx context.Context, title, body string) error {
	text := "**" + title + "**"
	if body != "" {
		text += "\n" + body
	}
	_, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}
