package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/paymentgateway"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	AcknowledgementMessage = "Payment initiated. Please complete the payment on your phone."

	titleSuccess   = "Payment Successful"
	titleFailure   = "Payment Failed"
	messageSuccess = "Your payment of %s has been processed successfully."
	messageFailure = "Your payment of %s could not be processed. Please try again."
)

var (
	ErrTransactionNotFound = internal.ErrTransactionNotFound
	ErrAlreadySettled      = internal.ErrAlreadySettled

	// ErrDuplicateTransaction is returned by the store when a unique key (gateway
	// reference or idempotency key) already exists.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

type RepositoryAPI interface {
	Create(ctx context.Context, txn *payment.Transaction) error
	GetByID(ctx context.Context, id int64) (*payment.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*payment.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, customerID int64, key string) (*payment.Transaction, error)
	ListByCustomer(ctx context.Context, customerID int64, filter ListFilter) ([]payment.Transaction, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]payment.Transaction, error)
	// Settle applies the terminal transition and inserts n in one store transaction.
	// It returns ErrAlreadySettled when the row is no longer processing.
	Settle(ctx context.Context, s payment.Settlement, n *notification.Notification) error
	RecordSettlementFailure(ctx context.Context, f *payment.SettlementFailure) error
	CountByStatus(ctx context.Context) ([]payment.StatusCount, error)
}

type ServiceAPI interface {
	Initiate(ctx context.Context, cmd InitiateCommand) (*InitiatePaymentResponse, error)
	GetByReference(ctx context.Context, reference string) (*TransactionView, error)
	List(ctx context.Context, customerID int64, query ListQuery) ([]TransactionView, error)
	Stats(ctx context.Context) ([]StatusSummary, error)
}

// Scheduler runs a settlement job at some later point.
type Scheduler interface {
	Schedule(job paymentgateway.SettlementJob) error
}

// OutcomeSource decides how a settlement ends. It is consulted once per job.
type OutcomeSource interface {
	Draw(job paymentgateway.SettlementJob) paymentgateway.Outcome
}

// gatewayDetails is the JSON kept in gateway_response.
type gatewayDetails struct {
	Phone            string     `json:"phone"`
	AccountReference string     `json:"account_reference"`
	Description      string     `json:"description,omitempty"`
	InitiatedAt      time.Time  `json:"initiated_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
	Outcome          string     `json:"outcome,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
}

func parseGatewayDetails(raw datatypes.JSON) gatewayDetails {
	var d gatewayDetails
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

func (d gatewayDetails) JSON() (datatypes.JSON, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway response: %w", err)
	}
	return datatypes.JSON(b), nil
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// buildNotification returns the user-facing record for a settled transaction.
func buildNotification(txn *payment.Transaction, outcome paymentgateway.Outcome) *notification.Notification {
	id := txn.ID
	n := &notification.Notification{
		UserID:        txn.CustomerID,
		Channel:       notification.ChannelPayment,
		TransactionID: &id,
		Data: datatypes.JSONMap{
			"transaction_id": txn.GatewayReference,
			"amount":         formatAmount(txn.Amount),
		},
	}

	if outcome.Succeeded() {
		n.EventType = notification.EventPaymentSuccess
		n.Priority = notification.PriorityNormal
		n.Title = titleSuccess
		n.Message = fmt.Sprintf(messageSuccess, formatAmount(txn.Amount))
	} else {
		n.EventType = notification.EventPaymentFailed
		n.Priority = notification.PriorityHigh
		n.Title = titleFailure
		n.Message = fmt.Sprintf(messageFailure, formatAmount(txn.Amount))
	}
	return n
}
