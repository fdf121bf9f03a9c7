package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/isp-billing/internal/core/datamodel/notification"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]notification.Notification, error) {
	var rows []notification.Notification
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (r *NotificationRepository) GetByTransaction(ctx context.Context, transactionID int64) (*notification.Notification, error) {
	var n notification.Notification
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}
