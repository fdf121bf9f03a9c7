package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/isp-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/isp-billing/internal/payment"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

var _ paymentpkg.RepositoryAPI = (*PaymentRepository)(nil)

func (r *PaymentRepository) Create(ctx context.Context, txn *payment.Transaction) error {
	return translate(r.db.WithContext(ctx).Create(txn).Error)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Transaction, error) {
	var t payment.Transaction
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Transaction, error) {
	var t payment.Transaction
	if err := r.db.WithContext(ctx).Where("gateway_reference = ?", reference).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, customerID int64, key string) (*payment.Transaction, error) {
	var t payment.Transaction
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND idempotency_key = ?", customerID, key).
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *PaymentRepository) ListByCustomer(ctx context.Context, customerID int64, filter paymentpkg.ListFilter) ([]payment.Transaction, error) {
	query := r.db.WithContext(ctx).Where("customer_id = ?", customerID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var txns []payment.Transaction
	err := query.Order("created_at DESC").Order("id DESC").Find(&txns).Error
	return txns, err
}

// ListByStatus returns transactions in status, oldest first. A limit of zero
// means no limit.
func (r *PaymentRepository) ListByStatus(ctx context.Context, status string, limit int) ([]payment.Transaction, error) {
	query := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var txns []payment.Transaction
	err := query.Find(&txns).Error
	return txns, err
}

func (r *PaymentRepository) Settle(ctx context.Context, s payment.Settlement, n *notification.Notification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":           s.Status,
			"processed_at":     s.ProcessedAt,
			"failure_reason":   s.FailureReason,
			"gateway_response": s.GatewayResponse,
			"updated_at":       time.Now().UTC(),
		}

		result := tx.Model(&payment.Transaction{}).
			Where("id = ? AND status = ?", s.TransactionID, payment.StatusProcessing).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return paymentpkg.ErrAlreadySettled
		}

		if n == nil {
			return nil
		}
		if err := tx.Create(n).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return paymentpkg.ErrAlreadySettled
			}
			return err
		}
		return nil
	})
}

func (r *PaymentRepository) RecordSettlementFailure(ctx context.Context, f *payment.SettlementFailure) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *PaymentRepository) CountByStatus(ctx context.Context) ([]payment.StatusCount, error) {
	var rows []payment.StatusCount
	err := r.db.WithContext(ctx).
		Model(&payment.Transaction{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("status").
		Order("status").
		Scan(&rows).Error
	return rows, err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return paymentpkg.ErrTransactionNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return paymentpkg.ErrDuplicateTransaction
	}
	return err
}
