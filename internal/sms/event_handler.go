package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/isp-billing/internal/core/events"
)

// EventHandler texts the customer when a payment settles.
type EventHandler struct {
	service ServiceAPI
	logger  *slog.Logger
}

func NewEventHandler(service ServiceAPI, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		service: service,
		logger:  logger,
	}
}

func (h *EventHandler) HandlePaymentSettled(ctx context.Context, event events.Event) error {
	settled, ok := event.(*events.PaymentSettledEvent)
	if !ok {
		h.logger.Error("invalid event type for sms handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentSettledEvent, got %T", event)
	}

	if settled.Phone == "" {
		h.logger.Debug("no phone on settled payment, skipping sms", "transaction_id", settled.GatewayReference)
		return nil
	}

	if err := h.service.Dispatch(ctx, SendRequest{
		PhoneNumber: settled.Phone,
		Message:     settlementMessage(settled),
		PaymentID:   settled.GatewayReference,
	}); err != nil {
		return fmt.Errorf("sms for %s: %w", settled.GatewayReference, err)
	}
	return nil
}

func settlementMessage(e *events.PaymentSettledEvent) string {
	amount := e.Amount.StringFixed(2)
	if e.FailureReason != "" {
		return fmt.Sprintf("Payment %s of %s %s failed: %s. Please try again.", e.GatewayReference, e.Currency, amount, e.FailureReason)
	}
	return fmt.Sprintf("Payment %s of %s %s received. Thank you.", e.GatewayReference, e.Currency, amount)
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentSettled)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentSettled)

	h.logger.Info("sms event handlers registered",
		"handlers", []string{events.EventTypePaymentCompleted, events.EventTypePaymentFailed})
}
