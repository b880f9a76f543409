// Package notify delivers alerts to external channels. Sinks subscribe to
// the alert bus and must never block or panic their way back into capture.
package notify

import (
	"fmt"
	"html"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/retracehq/retrace/internal/bus"
	"github.com/retracehq/retrace/internal/config"
)

// sender is the slice of the Telegram bot API the sink needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink forwards alerts to a Telegram chat.
type TelegramSink struct {
	bot    sender
	chatID int64
}

func NewTelegramSink(cfg config.TelegramConfig) (*TelegramSink, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: cfg.ChatID}, nil
}

// Attach registers the sink on the bus under a stable name.
func (t *TelegramSink) Attach(b *bus.AlertBus) {
	b.Subscribe("telegram", t.Handle)
}

// Handle sends one alert. Errors are logged and swallowed: delivery is
// best-effort and the dispatcher must keep going.
func (t *TelegramSink) Handle(alert bus.Alert) {
	msg := tgbotapi.NewMessage(t.chatID, formatAlert(alert))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[notify] telegram send failed: %v", err)
	}
}

func formatAlert(a bus.Alert) string {
	title := "Issue detected"
	if a.Kind == bus.KindModelError {
		title = "Model backend error"
	}

	text := fmt.Sprintf("<b>%s</b> (%s)\n%s", html.EscapeString(title),
		html.EscapeString(a.ErrorType), html.EscapeString(a.Message))
	if a.Source != "" {
		text += fmt.Sprintf("\nSource: %s", html.EscapeString(a.Source))
	}
	if a.Suggestion != "" {
		text += fmt.Sprintf("\nSuggestion: %s", html.EscapeString(a.Suggestion))
	}
	text += fmt.Sprintf("\n%s", a.Timestamp.Format("2006-01-02 15:04:05"))
	return text
}
