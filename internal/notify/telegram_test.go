package notify

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/retracehq/retrace/internal/bus"
)

type mockBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, m.err
}

func testAlert() bus.Alert {
	return bus.Alert{
		Timestamp:  time.Date(2026, 8, 30, 11, 19, 0, 0, time.UTC),
		Kind:       bus.KindIssue,
		ErrorType:  "build failure",
		Message:    "exit status 1",
		Suggestion: "check the compiler output",
		Source:     "Terminal",
	}
}

func TestTelegramSinkSendsAlert(t *testing.T) {
	mock := &mockBot{}
	sink := &TelegramSink{bot: mock, chatID: 42}

	sink.Handle(testAlert())

	if len(mock.sent) != 1 {
		t.Fatalf("sent = %d messages", len(mock.sent))
	}
	msg, ok := mock.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", mock.sent[0])
	}
	if msg.ChatID != 42 {
		t.Fatalf("chat id = %d", msg.ChatID)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("parse mode = %q", msg.ParseMode)
	}
	for _, want := range []string{"Issue detected", "build failure", "exit status 1", "Terminal", "check the compiler output"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestTelegramSinkSendErrorSwallowed(t *testing.T) {
	mock := &mockBot{err: tgbotapi.Error{Message: "chat not found"}}
	sink := &TelegramSink{bot: mock, chatID: 42}

	// Must not panic; delivery is best-effort.
	sink.Handle(testAlert())
}

func TestFormatAlertModelError(t *testing.T) {
	a := testAlert()
	a.Kind = bus.KindModelError
	a.ErrorType = "rate_limit"
	a.Suggestion = ""

	text := formatAlert(a)
	if !strings.Contains(text, "Model backend error") {
		t.Fatalf("missing title:\n%s", text)
	}
	if strings.Contains(text, "Suggestion:") {
		t.Fatalf("empty suggestion should be omitted:\n%s", text)
	}
}

func TestFormatAlertEscapesHTML(t *testing.T) {
	a := testAlert()
	a.Message = `expected <nil> & got "boom"`
	text := formatAlert(a)
	if strings.Contains(text, "<nil>") {
		t.Fatalf("message not escaped:\n%s", text)
	}
	if !strings.Contains(text, "&lt;nil&gt;") {
		t.Fatalf("escaped form missing:\n%s", text)
	}
}
