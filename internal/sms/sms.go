package sms

import (
	"context"
	"strings"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/common/validation"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/sms"
)

const SentMessage = "SMS sent successfully"

type RepositoryAPI interface {
	// EnsurePending creates the delivery record for n.PaymentID, or resets an
	// existing one to pending with the new phone and message.
	EnsurePending(ctx context.Context, n *sms.PaymentNotification) error
	MarkSent(ctx context.Context, paymentID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, paymentID string, reason string) error
	GetByPaymentID(ctx context.Context, paymentID string) (*sms.PaymentNotification, error)
}

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

type ServiceAPI interface {
	Dispatch(ctx context.Context, req SendRequest) error
}

// SendRequest is the body of POST /api/v1/sms/send.
type SendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	PaymentID   string `json:"payment_id"`
}

func (r *SendRequest) Normalize() {
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.PaymentID = strings.TrimSpace(r.PaymentID)
}

func (r SendRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("phone_number", r.PhoneNumber).Required().Phone()
	v.Field("message", r.Message).Required().MaxLength(480)
	v.Field("payment_id", r.PaymentID).Required().MaxLength(64)
	return v.Validate()
}

type SendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
