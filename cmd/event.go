package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/events"
	"github.com/frahmantamala/isp-billing/internal/payment"
	"github.com/frahmantamala/isp-billing/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish sample payment events on a local bus to inspect the handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample event",
	Long: fmt.Sprintf("Publish a sample event to a local event bus. Payment types (%s, %s, %s) get a realistic payload.",
		events.EventTypePaymentInitiated, events.EventTypePaymentCompleted, events.EventTypePaymentFailed),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishSampleEvent(args[0])
	},
}

var (
	eventReference string
	eventAmount    string
	eventPhone     string
)

func sampleEvent(eventType string) (events.Event, error) {
	amount, err := decimal.NewFromString(eventAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid --amount %q: %w", eventAmount, err)
	}

	switch eventType {
	case events.EventTypePaymentInitiated:
		return events.NewPaymentInitiatedEvent(1, 1, eventReference, amount), nil
	case events.EventTypePaymentCompleted:
		return events.NewPaymentCompletedEvent(1, 1, eventReference, amount, internal.DefaultCurrency, eventPhone, "completed"), nil
	case events.EventTypePaymentFailed:
		return events.NewPaymentFailedEvent(1, 1, eventReference, amount, internal.DefaultCurrency, eventPhone, "failed", internal.DefaultFailureReason), nil
	}

	return events.BaseEvent{
		ID:        fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"gateway_reference": eventReference,
			"source":            "cli-command",
		},
	}, nil
}

func publishSampleEvent(eventType string) error {
	lg := logger.LoggerWrapper()

	bus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(bus)

	bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("cli handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	event, err := sampleEvent(eventType)
	if err != nil {
		return err
	}

	lg.Info("publishing sample event", "event_type", eventType, "event_id", event.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	if err := bus.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for handlers: %w", err)
	}

	lg.Info("sample event handled", "event_type", eventType)
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventReference, "reference", "TXN1700000000000", "Gateway reference carried by the event")
	publishEventCmd.Flags().StringVar(&eventAmount, "amount", "500", "Payment amount")
	publishEventCmd.Flags().StringVar(&eventPhone, "phone", "254700000000", "Customer phone for settled events")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
