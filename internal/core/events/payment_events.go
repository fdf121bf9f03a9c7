package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentInitiated = "payment.initiated"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

// PaymentSettledEvent carries the terminal state of a transaction. Completed and
// failed settlements share the shape and differ by Type.
type PaymentSettledEvent struct {
	BaseEvent
	TransactionID    int64           `json:"transaction_id"`
	CustomerID       int64           `json:"customer_id"`
	GatewayReference string          `json:"gateway_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Phone            string          `json:"phone"`
	Status           string          `json:"status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
}

func NewPaymentCompletedEvent(transactionID, customerID int64, reference string, amount decimal.Decimal, currency, phone, status string) *PaymentSettledEvent {
	return newPaymentSettledEvent(EventTypePaymentCompleted, transactionID, customerID, reference, amount, currency, phone, status, "")
}

func NewPaymentFailedEvent(transactionID, customerID int64, reference string, amount decimal.Decimal, currency, phone, status, failureReason string) *PaymentSettledEvent {
	return newPaymentSettledEvent(EventTypePaymentFailed, transactionID, customerID, reference, amount, currency, phone, status, failureReason)
}

func newPaymentSettledEvent(eventType string, transactionID, customerID int64, reference string, amount decimal.Decimal, currency, phone, status, failureReason string) *PaymentSettledEvent {
	data := map[string]interface{}{
		"transaction_id":    transactionID,
		"customer_id":       customerID,
		"gateway_reference": reference,
		"amount":            amount.String(),
		"currency":          currency,
		"status":            status,
	}
	if failureReason != "" {
		data["failure_reason"] = failureReason
	}

	return &PaymentSettledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		TransactionID:    transactionID,
		CustomerID:       customerID,
		GatewayReference: reference,
		Amount:           amount,
		Currency:         currency,
		Phone:            phone,
		Status:           status,
		FailureReason:    failureReason,
	}
}

type PaymentInitiatedEvent struct {
	BaseEvent
	TransactionID    int64           `json:"transaction_id"`
	CustomerID       int64           `json:"customer_id"`
	GatewayReference string          `json:"gateway_reference"`
	Amount           decimal.Decimal `json:"amount"`
}

func NewPaymentInitiatedEvent(transactionID, customerID int64, reference string, amount decimal.Decimal) *PaymentInitiatedEvent {
	return &PaymentInitiatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentInitiated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id":    transactionID,
				"customer_id":       customerID,
				"gateway_reference": reference,
				"amount":            amount.String(),
			},
		},
		TransactionID:    transactionID,
		CustomerID:       customerID,
		GatewayReference: reference,
		Amount:           amount,
	}
}
