// Package notify delivers operator alerts for trading activity. Messages
// fan out to all registered senders (Telegram, Discord) and are filtered by
// event type so an operator can subscribe to, say, circuit-breaker trips
// without every placed trade.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the agents and the settlement sweep.
const (
	EventTradePlaced    = "trade_placed"
	EventTradeRejected  = "trade_rejected"
	EventCircuitBreaker = "circuit_breaker"
	EventPositionClosed = "position_closed"
	EventError          = "error"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed event types; Notify only forwards messages whose event type
// is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. Only
// events whose type appears in the events slice are forwarded; an empty
// list allows everything.
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

// Notify sends a notification to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// TradePlaced reports a filled order.
func (n *Notifier) TradePlaced(ctx context.Context, agent, question string, size, price float64) error {
	return n.Notify(ctx, EventTradePlaced,
		fmt.Sprintf("Trade placed (%s)", agent),
		fmt.Sprintf("%s\n$%.2f @ %.3f", question, size, price))
}

// TradeRejected reports an admission-control rejection with its reason.
func (n *Notifier) TradeRejected(ctx context.Context, agent, question, reason string) error {
	return n.Notify(ctx, EventTradeRejected,
		fmt.Sprintf("Trade rejected (%s)", agent),
		fmt.Sprintf("%s\nreason: %s", question, reason))
}

// CircuitBreaker reports a drawdown trip that halted an agent.
func (n *Notifier) CircuitBreaker(ctx context.Context, agent string, initial, current float64) error {
	return n.Notify(ctx, EventCircuitBreaker,
		fmt.Sprintf("Circuit breaker (%s)", agent),
		fmt.Sprintf("balance %.2f -> %.2f, trading halted", initial, current))
}

// PositionClosed reports a settled position and its realized PnL.
func (n *Notifier) PositionClosed(ctx context.Context, question string, pnl float64) error {
	return n.Notify(ctx, EventPositionClosed,
		"Position closed",
		fmt.Sprintf("%s\nPnL: %+.2f", question, pnl))
}

// Error reports an operational failure worth waking someone up for.
func (n *Notifier) Error(ctx context.Context, component string, err error) error {
	return n.Notify(ctx, EventError,
		fmt.Sprintf("Error in %s", component),
		err.Error())
}

// dispatch iterates over all senders. Errors from individual senders are
// collected so a single failure does not prevent delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
