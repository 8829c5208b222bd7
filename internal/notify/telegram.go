package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultTelegramTimeout = 10 * time.Second

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards high and critical priority events to one chat.
// After Start, Publish only enqueues and a full queue drops the message.
type TelegramNotifier struct {
	Bot    Sender
	ChatID int64
	// OnError receives send failures of the background worker.
	OnError func(error)

	queue   chan tgbotapi.Chattable
	dropped atomic.Uint64
}

func NewTelegramNotifier(token string, chatID int64, timeout time.Duration) (*TelegramNotifier, error) {
	if timeout <= 0 {
		timeout = defaultTelegramTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramNotifier{Bot: bot, ChatID: chatID}, nil
}

// Start runs the delivery worker until ctx is done. Call it once, before the
// first Publish.
func (t *TelegramNotifier) Start(ctx context.Context, buf int) {
	if t == nil || t.queue != nil {
		return
	}
	if buf <= 0 {
		buf = 64
	}
	t.queue = make(chan tgbotapi.Chattable, buf)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-t.queue:
				if _, err := t.Bot.Send(msg); err != nil && t.OnError != nil {
					t.OnError(err)
				}
			}
		}
	}()
}

func (t *TelegramNotifier) Publish(ctx context.Context, ev Event) error {
	if t == nil || t.Bot == nil || t.ChatID == 0 {
		return nil
	}
	if ev.Priority != "high" && ev.Priority != "critical" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.ChatID, formatMessage(ev))
	if t.queue != nil {
		select {
		case t.queue <- msg:
		default:
			t.dropped.Add(1)
		}
		return nil
	}
	_, err := t.Bot.Send(msg)
	return err
}

func (t *TelegramNotifier) Dropped() uint64 {
	return t.dropped.Load()
}

func formatMessage(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(ev.Priority), ev.Type)
	if ev.ASIN != "" {
		fmt.Fprintf(&b, " %s", ev.ASIN)
	}
	if ev.Message != "" {
		b.WriteString("\n")
		b.WriteString(ev.Message)
	}
	return b.String()
}
