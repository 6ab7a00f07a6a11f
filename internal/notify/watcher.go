package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xlabhq/triarb/internal/domain"
)

// cyclesChannel is the signal bus channel confirmed cycles are published on.
const cyclesChannel = "cycles"

// CycleWatcher follows confirmed cycles on the signal bus and forwards them
// to the notifier, so operators hear about opportunities found by any scanner
// instance.
type CycleWatcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewCycleWatcher creates a CycleWatcher.
func NewCycleWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *CycleWatcher {
	return &CycleWatcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "cycle_watcher")),
	}
}

// Run consumes the cycles channel until the context is cancelled.
func (w *CycleWatcher) Run(ctx context.Context) error {
	ch, err := w.bus.Subscribe(ctx, cyclesChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", cyclesChannel, err)
	}
	w.logger.Info("cycle watcher started")
	defer w.logger.Info("cycle watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return fmt.Errorf("notify: cycles subscription closed")
			}
			var c domain.Cycle
			if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
				continue
			}
			if err := w.notifier.CycleConfirmed(ctx, c); err != nil {
				w.logger.Warn("cycle notification failed", slog.String("error", err.Error()))
			}
		}
	}
}
