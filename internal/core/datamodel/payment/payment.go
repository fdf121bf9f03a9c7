package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	TypePayment = "payment"
)

type Transaction struct {
	ID               int64           `gorm:"primaryKey"`
	CustomerID       int64           `gorm:"column:customer_id;not null;index;uniqueIndex:idx_payment_transactions_idempotency,priority:1"`
	TransactionType  string          `gorm:"column:transaction_type;not null;default:payment"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency         string          `gorm:"column:currency;type:varchar(3);not null"`
	Status           string          `gorm:"column:status;not null;default:processing;index"`
	GatewayReference string          `gorm:"column:gateway_reference;not null;uniqueIndex"`
	GatewayResponse  datatypes.JSON  `gorm:"column:gateway_response"`
	IdempotencyKey   *string         `gorm:"column:idempotency_key;uniqueIndex:idx_payment_transactions_idempotency,priority:2"`
	FailureReason    *string         `gorm:"column:failure_reason"`
	ProcessedAt      *time.Time      `gorm:"column:processed_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}

func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Settlement is the terminal write applied to a processing transaction.
type Settlement struct {
	TransactionID   int64
	Status          string
	FailureReason   *string
	GatewayResponse datatypes.JSON
	ProcessedAt     time.Time
}

// SettlementFailure is the dead-letter record for a settlement that exhausted its retries.
type SettlementFailure struct {
	ID               int64     `gorm:"primaryKey"`
	TransactionID    int64     `gorm:"column:transaction_id;not null;index"`
	GatewayReference string    `gorm:"column:gateway_reference;not null"`
	Outcome          string    `gorm:"column:outcome;not null"`
	Attempts         int       `gorm:"column:attempts;not null"`
	LastError        string    `gorm:"column:last_error;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SettlementFailure) TableName() string {
	return "settlement_failures"
}

// StatusCount is one row of the per-status summary.
type StatusCount struct {
	Status string          `gorm:"column:status"`
	Count  int64           `gorm:"column:count"`
	Total  decimal.Decimal `gorm:"column:total"`
}
