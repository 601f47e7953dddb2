// Package notify fans swap progress notifications out to subscribers.
package notify

import (
	"context"
	"fmt"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

const topic = "swap:progress"

// Notification is one user-visible progress update of a swap.
type Notification struct {
	SwapID       string      `json:"swap_id"`
	WalletID     string      `json:"wallet_id"`
	Status       swap.Status `json:"status"`
	Step         int         `json:"step"`
	TotalSteps   int         `json:"total_steps"`
	Label        string      `json:"label"`
	Message      string      `json:"message"`
	FilterStatus string      `json:"filter_status"`
	Time         time.Time   `json:"time"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FromRecord builds the notification for the record's current status. The
// destination amount is shown in the destination asset's display units.
func FromRecord(registry *asset.Registry, rec *swap.Record) (Notification, error) {
	d, ok := swap.DisplayFor(rec.Status)
	if !ok {
		return Notification{}, fmt.Errorf("%w: %q", swap.ErrUnknownStatus, rec.Status)
	}
	to, err := registry.Asset(rec.To)
	if err != nil {
		return Notification{}, err
	}
	pretty := asset.FromBaseUnits(rec.ToAmount, to.Decimals).String()

	return Notification{
		SwapID:       rec.ID,
		WalletID:     rec.WalletID,
		Status:       rec.Status,
		Step:         d.Step,
		TotalSteps:   swap.TotalSteps,
		Label:        d.RenderLabel(rec),
		Message:      d.Message(rec, pretty),
		FilterStatus: d.FilterStatus,
		Time:         time.Now().UTC(),
	}, nil
}

// Bus is an in-process Notifier that publishes to asynchronous subscribers.
type Bus struct {
	bus    evbus.Bus
	logger *zap.Logger
}

// NewBus creates a notification bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		bus:    evbus.New(),
		logger: logger,
	}
}

// Notify publishes n to every subscriber. It never blocks on subscribers.
func (b *Bus) Notify(_ context.Context, n Notification) error {
	b.bus.Publish(topic, n)
	return nil
}

// Subscribe registers fn to receive every notification. Handlers run
// asynchronously, one notification at a time per handler.
func (b *Bus) Subscribe(fn func(Notification)) error {
	if err := b.bus.SubscribeAsync(topic, fn, true); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Wait blocks until all published notifications have been handled.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

// LogSink returns a subscriber that writes notifications to logger.
func LogSink(logger *zap.Logger) func(Notification) {
	return func(n Notification) {
		logger.Info("Swap progress",
			zap.String("swap_id", n.SwapID),
			zap.String("wallet_id", n.WalletID),
			zap.String("status", n.Status.String()),
			zap.Int("step", n.Step),
			zap.String("label", n.Label),
			zap.String("message", n.Message))
	}
}
