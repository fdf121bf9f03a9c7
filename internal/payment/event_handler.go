package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/isp-billing/internal/core/events"
)

// EventHandler writes the payment lifecycle to the audit log.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{
		logger: logger.With("component", "payment_audit"),
	}
}

func (h *EventHandler) HandlePaymentInitiated(ctx context.Context, event events.Event) error {
	initiated, ok := event.(*events.PaymentInitiatedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment initiated handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentInitiatedEvent, got %T", event)
	}

	h.logger.InfoContext(ctx, "payment initiated",
		"transaction_id", initiated.GatewayReference,
		"customer_id", initiated.CustomerID,
		"amount", initiated.Amount.String(),
		"event_id", initiated.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentSettled(ctx context.Context, event events.Event) error {
	settled, ok := event.(*events.PaymentSettledEvent)
	if !ok {
		h.logger.Error("invalid event type for payment settled handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentSettledEvent, got %T", event)
	}

	attrs := []any{
		"transaction_id", settled.GatewayReference,
		"customer_id", settled.CustomerID,
		"amount", settled.Amount.String(),
		"currency", settled.Currency,
		"status", settled.Status,
		"event_id", settled.EventID(),
	}
	if settled.FailureReason != "" {
		h.logger.WarnContext(ctx, "payment failed", append(attrs, "failure_reason", settled.FailureReason)...)
		return nil
	}
	h.logger.InfoContext(ctx, "payment completed", attrs...)
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentInitiated, h.HandlePaymentInitiated)
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentSettled)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentSettled)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentInitiated, events.EventTypePaymentCompleted, events.EventTypePaymentFailed})
}
