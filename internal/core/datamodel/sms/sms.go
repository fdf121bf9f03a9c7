package sms

import "time"

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// PaymentNotification tracks delivery of one payment SMS.
type PaymentNotification struct {
	ID           int64      `gorm:"primaryKey"`
	PaymentID    string     `gorm:"column:payment_id;not null;uniqueIndex"`
	PhoneNumber  string     `gorm:"column:phone_number;not null"`
	Message      string     `gorm:"column:message;not null"`
	Status       string     `gorm:"column:status;not null;default:pending"`
	ErrorMessage *string    `gorm:"column:error_message"`
	SentAt       *time.Time `gorm:"column:sent_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentNotification) TableName() string {
	return "payment_notifications"
}
