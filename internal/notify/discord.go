package notify

import (
	"context"
	"fmt"
)

// discordMaxContent is Discord's message length limit.
const discordMaxContent = 2000

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	poster
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string, maxRetries int) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		poster:     newPoster("discord", maxRetries),
	}
}

// Send posts the message with the title in bold. Over-long content is
// truncated.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n%s", title, message)
	if r := []rune(content); len(r) > discordMaxContent {
		content = string(r[:discordMaxContent-1]) + "…"
	}
	return d.post(ctx, d.webhookURL, map[string]string{"content": content})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }
