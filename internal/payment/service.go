package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/isp-billing/internal/core/events"
)

const maxReferenceAttempts = 3

type Service struct {
	repo       RepositoryAPI
	scheduler  Scheduler
	publisher  events.Publisher
	references *ReferenceGenerator
	currency   string
	now        func() time.Time
	logger     *slog.Logger
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithReferenceGenerator(g *ReferenceGenerator) ServiceOption {
	return func(s *Service) { s.references = g }
}

func NewService(repo RepositoryAPI, scheduler Scheduler, publisher events.Publisher, currency string, logger *slog.Logger, opts ...ServiceOption) *Service {
	if currency == "" {
		currency = internal.DefaultCurrency
	}
	s := &Service{
		repo:      repo,
		scheduler: scheduler,
		publisher: publisher,
		currency:  currency,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.references == nil {
		s.references = NewReferenceGenerator(s.now)
	}
	return s
}

// Initiate stores a processing transaction for the caller and schedules its
// settlement. The transaction is acknowledged before settlement runs.
func (s *Service) Initiate(ctx context.Context, cmd InitiateCommand) (*InitiatePaymentResponse, error) {
	req := cmd.Request
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, cmd.CustomerID, cmd.IdempotencyKey)
		switch {
		case err == nil:
			s.logger.Info("idempotent replay of payment initiation",
				"customer_id", cmd.CustomerID,
				"transaction_id", existing.GatewayReference)
			return acknowledge(existing), nil
		case !errors.Is(err, ErrTransactionNotFound):
			s.logger.Error("idempotency lookup failed", "error", err, "customer_id", cmd.CustomerID)
			return nil, internal.NewStoreError("failed to initiate payment", err)
		}
	}

	initiatedAt := s.now().UTC()
	details, err := gatewayDetails{
		Phone:            req.Phone,
		AccountReference: req.AccountReference,
		Description:      req.Description,
		InitiatedAt:      initiatedAt,
	}.JSON()
	if err != nil {
		return nil, internal.NewInternalError("failed to initiate payment", err)
	}

	var txn *payment.Transaction
	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		candidate := &payment.Transaction{
			CustomerID:       cmd.CustomerID,
			TransactionType:  payment.TypePayment,
			Amount:           req.Amount,
			Currency:         s.currency,
			Status:           payment.StatusProcessing,
			GatewayReference: s.references.Next(),
			GatewayResponse:  details,
		}
		if cmd.IdempotencyKey != "" {
			key := cmd.IdempotencyKey
			candidate.IdempotencyKey = &key
		}

		err = s.repo.Create(ctx, candidate)
		if err == nil {
			txn = candidate
			break
		}
		if !errors.Is(err, ErrDuplicateTransaction) {
			s.logger.Error("failed to store payment transaction", "error", err, "customer_id", cmd.CustomerID)
			return nil, internal.NewStoreError("failed to initiate payment", err)
		}

		if cmd.IdempotencyKey != "" {
			if existing, lookupErr := s.repo.GetByIdempotencyKey(ctx, cmd.CustomerID, cmd.IdempotencyKey); lookupErr == nil {
				return acknowledge(existing), nil
			}
		}
		s.logger.Warn("gateway reference collision, retrying",
			"reference", candidate.GatewayReference,
			"attempt", attempt)
	}
	if txn == nil {
		s.logger.Error("could not allocate a unique gateway reference", "customer_id", cmd.CustomerID)
		return nil, internal.NewStoreError("failed to initiate payment", err)
	}

	s.logger.Info("payment transaction created",
		"transaction_id", txn.GatewayReference,
		"id", txn.ID,
		"customer_id", txn.CustomerID,
		"amount", txn.Amount.String())

	s.schedule(txn, initiatedAt)

	if s.publisher != nil {
		event := events.NewPaymentInitiatedEvent(txn.ID, txn.CustomerID, txn.GatewayReference, txn.Amount)
		if err := s.publisher.Publish(internal.Detach(ctx), event); err != nil {
			s.logger.Warn("failed to publish payment initiated event", "error", err, "transaction_id", txn.GatewayReference)
		}
	}

	return acknowledge(txn), nil
}

func (s *Service) schedule(txn *payment.Transaction, initiatedAt time.Time) {
	job := paymentgateway.SettlementJob{
		TransactionID:    txn.ID,
		CustomerID:       txn.CustomerID,
		Amount:           txn.Amount,
		GatewayReference: txn.GatewayReference,
		InitiatedAt:      initiatedAt,
	}
	if err := s.scheduler.Schedule(job); err != nil {
		s.logger.Warn("failed to schedule settlement, left for recovery",
			"error", err,
			"transaction_id", txn.GatewayReference)
	}
}

// RecoverPending reschedules every transaction still processing. Due times are
// measured from creation, so overdue transactions settle straight away.
func (s *Service) RecoverPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListByStatus(ctx, payment.StatusProcessing, 0)
	if err != nil {
		return 0, internal.NewStoreError("failed to list pending transactions", err)
	}

	for i := range pending {
		txn := &pending[i]
		initiatedAt := parseGatewayDetails(txn.GatewayResponse).InitiatedAt
		if initiatedAt.IsZero() {
			initiatedAt = txn.CreatedAt
		}
		s.schedule(txn, initiatedAt)
	}

	if len(pending) > 0 {
		s.logger.Info("rescheduled pending settlements", "count", len(pending))
	}
	return len(pending), nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*TransactionView, error) {
	txn, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, internal.NewStoreError("failed to load transaction", err)
	}
	view := NewTransactionView(txn)
	return &view, nil
}

func (s *Service) List(ctx context.Context, customerID int64, query ListQuery) ([]TransactionView, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	txns, err := s.repo.ListByCustomer(ctx, customerID, query.Filter())
	if err != nil {
		return nil, internal.NewStoreError("failed to list transactions", err)
	}

	views := make([]TransactionView, 0, len(txns))
	for i := range txns {
		views = append(views, NewTransactionView(&txns[i]))
	}
	return views, nil
}

func (s *Service) Stats(ctx context.Context) ([]StatusSummary, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, internal.NewStoreError("failed to load payment statistics", err)
	}

	out := make([]StatusSummary, 0, len(counts))
	for _, c := range counts {
		out = append(out, StatusSummary{Status: c.Status, Count: c.Count, Total: c.Total})
	}
	return out, nil
}

func acknowledge(txn *payment.Transaction) *InitiatePaymentResponse {
	return &InitiatePaymentResponse{
		Success:       true,
		TransactionID: txn.GatewayReference,
		Message:       AcknowledgementMessage,
		Status:        txn.Status,
	}
}
