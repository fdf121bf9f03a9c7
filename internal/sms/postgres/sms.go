package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/isp-billing/internal/core/datamodel/sms"
	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("sms record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsurePending(ctx context.Context, n *sms.PaymentNotification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(sms.PaymentNotification{PaymentID: n.PaymentID}).
			Attrs(sms.PaymentNotification{PhoneNumber: n.PhoneNumber, Message: n.Message, Status: sms.StatusPending}).
			FirstOrCreate(n).Error
		if err != nil {
			return fmt.Errorf("ensure sms record: %w", err)
		}

		return tx.Model(&sms.PaymentNotification{}).
			Where("id = ?", n.ID).
			Updates(map[string]interface{}{
				"phone_number":  n.PhoneNumber,
				"message":       n.Message,
				"status":        sms.StatusPending,
				"error_message": nil,
				"updated_at":    time.Now().UTC(),
			}).Error
	})
}

func (r *Repository) MarkSent(ctx context.Context, paymentID string, sentAt time.Time) error {
	return r.mark(ctx, paymentID, map[string]interface{}{
		"status":        sms.StatusSent,
		"sent_at":       sentAt,
		"error_message": nil,
		"updated_at":    time.Now().UTC(),
	})
}

func (r *Repository) MarkFailed(ctx context.Context, paymentID string, reason string) error {
	return r.mark(ctx, paymentID, map[string]interface{}{
		"status":        sms.StatusFailed,
		"error_message": reason,
		"updated_at":    time.Now().UTC(),
	})
}

func (r *Repository) mark(ctx context.Context, paymentID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&sms.PaymentNotification{}).
		Where("payment_id = ?", paymentID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (*sms.PaymentNotification, error) {
	var n sms.PaymentNotification
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &n, nil
}
