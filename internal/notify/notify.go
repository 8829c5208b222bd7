// Package notify fans collection results out to live subscribers. Delivery is
// best effort; nothing upstream waits for an acknowledgment.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	EventBuyBoxChange = "buy_box_change"
	EventInsight      = "insight"
	EventPassSummary  = "pass_summary"
)

type Event struct {
	Type     string    `json:"type"`
	ASIN     string    `json:"asin,omitempty"`
	Priority string    `json:"priority,omitempty"`
	Message  string    `json:"message,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi struct {
	Publishers []Publisher
	Logger     *zap.Logger
}

func (m *Multi) Publish(ctx context.Context, ev Event) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, p := range m.Publishers {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
			if m.Logger != nil {
				m.Logger.Warn("notify publish failed", zap.String("type", ev.Type), zap.String("asin", ev.ASIN), zap.Error(err))
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Add(p Publisher) {
	if m == nil || p == nil {
		return
	}
	m.Publishers = append(m.Publishers, p)
}
