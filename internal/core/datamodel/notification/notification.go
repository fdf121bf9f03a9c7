package notification

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ChannelPayment = "payment"

	EventPaymentSuccess = "payment_success"
	EventPaymentFailed  = "payment_failed"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type Notification struct {
	ID            int64             `gorm:"primaryKey"`
	UserID        int64             `gorm:"column:user_id;not null;index"`
	Channel       string            `gorm:"column:channel;not null"`
	EventType     string            `gorm:"column:event_type;not null"`
	Title         string            `gorm:"column:title;not null"`
	Message       string            `gorm:"column:message;not null"`
	Data          datatypes.JSONMap `gorm:"column:data"`
	Priority      string            `gorm:"column:priority;not null;default:normal"`
	TransactionID *int64            `gorm:"column:transaction_id;uniqueIndex"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
