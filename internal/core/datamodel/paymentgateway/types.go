package paymentgateway

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeFailed  OutcomeStatus = "FAILED"
)

// Outcome is the simulated gateway verdict for one settlement.
type Outcome struct {
	Status        OutcomeStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
}

func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}

// SettlementJob is what the initiator hands to the scheduler.
type SettlementJob struct {
	TransactionID    int64           `json:"transaction_id"`
	CustomerID       int64           `json:"customer_id"`
	Amount           decimal.Decimal `json:"amount"`
	GatewayReference string          `json:"gateway_reference"`
	InitiatedAt      time.Time       `json:"initiated_at"`
}

func (j SettlementJob) Validate() error {
	if j.TransactionID <= 0 {
		return errors.New("transaction_id is required")
	}
	if j.GatewayReference == "" {
		return errors.New("gateway_reference is required")
	}
	if !j.Amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	return nil
}

// SettlementResult reports the terminal state written by a settlement.
type SettlementResult struct {
	TransactionID    int64         `json:"transaction_id"`
	GatewayReference string        `json:"gateway_reference"`
	Status           string        `json:"status"`
	Outcome          OutcomeStatus `json:"outcome"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	ProcessedAt      time.Time     `json:"processed_at"`
	Attempts         int           `json:"attempts"`
}
