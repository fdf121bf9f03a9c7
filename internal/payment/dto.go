package payment

import (
	"strings"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/common/validation"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// MaxAmount is the largest value NUMERIC(14,2) holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// InitiatePaymentRequest is the body of POST /api/v1/payments.
type InitiatePaymentRequest struct {
	Phone            string          `json:"phone"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"account_reference"`
	Description      string          `json:"description"`
}

func (r *InitiatePaymentRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.AccountReference = strings.TrimSpace(r.AccountReference)
	r.Description = strings.TrimSpace(r.Description)
}

func (r InitiatePaymentRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("phone", r.Phone).Required().Phone()
	v.Field("amount", r.Amount).Required().Positive(internal.ErrCodeInvalidAmount).Money(2, MaxAmount, internal.ErrCodeInvalidAmount)
	v.Field("account_reference", r.AccountReference).Required().MaxLength(64)
	v.Field("description", r.Description).MaxLength(255)
	return v.Validate()
}

// InitiateCommand is a validated request bound to the caller.
type InitiateCommand struct {
	CustomerID     int64
	IdempotencyKey string
	Request        InitiatePaymentRequest
}

type InitiatePaymentResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
	Status        string `json:"status"`
}

type TransactionView struct {
	ID               int64           `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	CustomerID       int64           `json:"customer_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Phone            string          `json:"phone,omitempty"`
	AccountReference string          `json:"account_reference,omitempty"`
	Description      string          `json:"description,omitempty"`
	FailureReason    *string         `json:"failure_reason"`
	ProcessedAt      *time.Time      `json:"processed_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

func NewTransactionView(t *payment.Transaction) TransactionView {
	d := parseGatewayDetails(t.GatewayResponse)
	return TransactionView{
		ID:               t.ID,
		TransactionID:    t.GatewayReference,
		CustomerID:       t.CustomerID,
		Amount:           t.Amount,
		Currency:         t.Currency,
		Status:           t.Status,
		Phone:            d.Phone,
		AccountReference: d.AccountReference,
		Description:      d.Description,
		FailureReason:    t.FailureReason,
		ProcessedAt:      t.ProcessedAt,
		CreatedAt:        t.CreatedAt,
	}
}

// ListQuery is the query string of GET /api/v1/payments.
type ListQuery struct {
	Status string
	Limit  int64
	Offset int64
}

func (q ListQuery) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("status", q.Status).OneOf(payment.StatusProcessing, payment.StatusCompleted, payment.StatusFailed)
	v.Field("limit", q.Limit).MinInt(0, internal.ErrCodeInvalidPagination).MaxInt(MaxListLimit, internal.ErrCodeInvalidPagination)
	v.Field("offset", q.Offset).MinInt(0, internal.ErrCodeInvalidPagination)
	return v.Validate()
}

func (q ListQuery) Filter() ListFilter {
	limit := int(q.Limit)
	if limit == 0 {
		limit = DefaultListLimit
	}
	return ListFilter{Status: q.Status, Limit: limit, Offset: int(q.Offset)}
}

// ListFilter is what the store receives for a listing.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

type StatusSummary struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}
