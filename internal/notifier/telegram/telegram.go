// Package telegram delivers revealed signals to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/notifier"
)

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	endpoint string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// New creates a new Telegram notifier. The bot is connected on first send.
func New(botToken, chatID string) *Telegram {
	return NewWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint)
}

// NewWithEndpoint creates a notifier against a custom Bot API endpoint
// (format "<base>/bot%s/%s"), useful for testing.
func NewWithEndpoint(botToken, chatID, endpoint string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		endpoint: endpoint,
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Send(ctx context.Context, d notifier.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := t.client()
	if err != nil {
		return err
	}

	msg, err := t.message(formatDelivery(d))
	if err != nil {
		return err
	}
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	return nil
}

func (t *Telegram) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.botToken, t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: connecting bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// message targets a numeric chat id or an @channel username.
func (t *Telegram) message(text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(t.chatID, "@") {
		return tgbotapi.NewMessageToChannel(t.chatID, text), nil
	}
	id, err := strconv.ParseInt(t.chatID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram: invalid chat_id %q: %w", t.chatID, err)
	}
	return tgbotapi.NewMessage(id, text), nil
}

func formatDelivery(d notifier.Delivery) string {
	var sb strings.Builder

	title := "Next signal"
	if d.Market == core.MarketOTC {
		title = "OTC signals"
	}
	fmt.Fprintf(&sb, "🔔 *%s* at %s\n", title, d.At)

	if len(d.Signals) == 0 {
		sb.WriteString("No signals available")
		return sb.String()
	}

	for i, s := range d.Signals {
		emoji := "📈"
		if s.Action == core.ActionPut {
			emoji = "📉"
		}
		fmt.Fprintf(&sb, "%s %s %s %s",
			emoji, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s.Name), s.Time, s.Action)
		if i < len(d.Signals)-1 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
