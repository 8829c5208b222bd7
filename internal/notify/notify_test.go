package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestHubFanOutAndDrop(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(1)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	_ = h.Publish(context.Background(), Event{Type: EventBuyBoxChange, ASIN: "B01"})
	_ = h.Publish(context.Background(), Event{Type: EventBuyBoxChange, ASIN: "B02"})

	if ev := <-a; ev.ASIN != "B01" {
		t.Fatalf("a got %s", ev.ASIN)
	}
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d want=1", h.Dropped())
	}
	for _, want := range []string{"B01", "B02"} {
		if ev := <-b; ev.ASIN != want {
			t.Fatalf("b got %s want=%s", ev.ASIN, want)
		}
	}

	cancelA()
	cancelA()
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers=%d want=1", h.Subscribers())
	}
	if _, ok := <-a; ok {
		t.Fatalf("cancelled channel still open")
	}
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramOnlyForwardsHighPriority(t *testing.T) {
	s := &fakeSender{}
	n := &TelegramNotifier{Bot: s, ChatID: 42}
	_ = n.Publish(context.Background(), Event{Type: EventInsight, Priority: "medium", ASIN: "B01"})
	_ = n.Publish(context.Background(), Event{Type: EventBuyBoxChange, Priority: "high", ASIN: "B02", Message: "Rival won the Buy Box"})
	if len(s.sent) != 1 {
		t.Fatalf("sent=%d want=1", len(s.sent))
	}
	if !strings.HasPrefix(s.sent[0], "[HIGH] buy_box_change B02") || !strings.Contains(s.sent[0], "Rival") {
		t.Fatalf("text=%q", s.sent[0])
	}
}

type blockingSender struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.entered <- struct{}{}
	<-b.release
	return tgbotapi.Message{}, nil
}

func TestTelegramQueuedPublishDoesNotBlockOnHungSend(t *testing.T) {
	s := &blockingSender{entered: make(chan struct{}, 8), release: make(chan struct{})}
	n := &TelegramNotifier{Bot: s, ChatID: 42}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx, 1)

	high := Event{Type: EventBuyBoxChange, Priority: "high", ASIN: "B01"}
	_ = n.Publish(ctx, high)
	select {
	case <-s.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never sent")
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			_ = n.Publish(ctx, high)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked behind a hung send")
	}
	if n.Dropped() != 2 {
		t.Fatalf("dropped=%d want=2", n.Dropped())
	}
	close(s.release)
}

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func TestMultiContinuesPastFailures(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()
	m := &Multi{}
	m.Add(failing{})
	m.Add(h)
	if err := m.Publish(context.Background(), Event{Type: EventInsight}); err == nil {
		t.Fatalf("expected joined error")
	}
	if ev := <-ch; ev.Type != EventInsight {
		t.Fatalf("hub did not receive event")
	}
}
