package notify

import (
	"context"
	"fmt"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	poster
}

// NewTelegramSender creates a TelegramSender for a bot token and chat.
func NewTelegramSender(token, chatID string, maxRetries int) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		poster:  newPoster("telegram", maxRetries),
	}
}

// Send posts a Markdown message with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return t.post(ctx, fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token), map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
