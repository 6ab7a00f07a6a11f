// Package notify alerts operators about scanner activity. Confirmed cycles
// and scan failures are rendered into alerts and dispatched to all registered
// senders (Telegram, Discord), filtered by event type so operators receive
// only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xlabhq/triarb/internal/domain"
)

// Event types used when filtering notifications.
const (
	EventCycleConfirmed = "cycle_confirmed"
	EventError          = "error"
)

// Alert is one operator notification: the event type it belongs to plus a
// rendered title and body. When the alert was raised by a confirmed cycle,
// Cycle carries it so senders can render venue-specific detail.
type Alert struct {
	Event string
	Title string
	Body  string
	Cycle *domain.Cycle
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one alert.
	Send(ctx context.Context, a Alert) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier renders scanner events into alerts and dispatches them to one or
// more Senders. It maintains a set of allowed event types; alerts whose event
// type is not in the set are dropped. An empty set allows every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// alerts whose event type appears in the events slice are forwarded; if events
// is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// CycleConfirmed alerts that a cycle cleared depth confirmation.
func (n *Notifier) CycleConfirmed(ctx context.Context, c domain.Cycle) error {
	return n.send(ctx, Alert{
		Event: EventCycleConfirmed,
		Title: "Cycle confirmed",
		Body:  FormatCycle(c),
		Cycle: &c,
	})
}

// ScanError alerts that a sweep of one base asset failed.
func (n *Notifier) ScanError(ctx context.Context, base string, err error) error {
	return n.send(ctx, Alert{
		Event: EventError,
		Title: "Scan error",
		Body:  fmt.Sprintf("sweep of %s failed: %v", base, err),
	})
}

// send dispatches an alert to every sender if its event type is allowed.
// Errors from individual senders are collected and returned combined; one
// sender failing does not prevent delivery to the remaining senders.
func (n *Notifier) send(ctx context.Context, a Alert) error {
	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", a.Event),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "alert sent",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FormatCycle renders a cycle as a compact human-readable alert body: the
// realized rate followed by one line per leg.
func FormatCycle(c domain.Cycle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rate %.4f", c.MaxRate)
	for _, t := range c.Trades {
		fmt.Fprintf(&b, "\n%s → %s on %s (last %.6g)", t.Sell, t.Buy, t.Exchange, t.UnitLastPrice)
	}
	return b.String()
}
