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
	"github.com/sethvargo/go-retry"
)

const (
	defaultSettleRetries   = 3
	defaultSettleBaseDelay = 500 * time.Millisecond
	deadLetterTimeout      = 5 * time.Second
)

type SettlerConfig struct {
	MaxRetries     uint64
	RetryBaseDelay time.Duration
}

// Settler moves a processing transaction to its terminal state and records the
// matching notification.
type Settler struct {
	repo       RepositoryAPI
	outcomes   OutcomeSource
	publisher  events.Publisher
	maxRetries uint64
	baseDelay  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewSettler(repo RepositoryAPI, outcomes OutcomeSource, publisher events.Publisher, cfg SettlerConfig, logger *slog.Logger) *Settler {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultSettleRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultSettleBaseDelay
	}
	return &Settler{
		repo:       repo,
		outcomes:   outcomes,
		publisher:  publisher,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		now:        time.Now,
		logger:     logger,
	}
}

// Settle draws the outcome once and applies it. Store errors are retried with
// exponential backoff; a settlement that still fails is dead-lettered and its
// error returned. A cancelled ctx returns its error without a dead-letter row,
// leaving the transaction processing. ErrAlreadySettled means another run got
// there first.
func (s *Settler) Settle(ctx context.Context, job paymentgateway.SettlementJob) (*paymentgateway.SettlementResult, error) {
	if err := job.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	outcome := s.outcomes.Draw(job)
	logger := s.logger.With("transaction_id", job.GatewayReference, "outcome", outcome.Status)

	var (
		attempts int
		settled  *payment.Transaction
		applied  payment.Settlement
	)

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		txn, err := s.repo.GetByID(ctx, job.TransactionID)
		if err != nil {
			if errors.Is(err, ErrTransactionNotFound) {
				return err
			}
			logger.Warn("settlement load failed, retrying", "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		if txn.IsTerminal() {
			return ErrAlreadySettled
		}

		settlement, err := s.buildSettlement(txn, outcome)
		if err != nil {
			return err
		}

		if err := s.repo.Settle(ctx, settlement, buildNotification(txn, outcome)); err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				return err
			}
			logger.Warn("settlement write failed, retrying", "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}

		settled, applied = txn, settlement
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrTransactionNotFound) {
			logger.Info("settlement skipped", "reason", err.Error())
			return nil, err
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("settlement interrupted, left for recovery", "attempts", attempts, "error", err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}

		logger.Error("settlement failed", "attempts", attempts, "error", err)
		s.deadLetter(ctx, job, outcome, attempts, err)
		return nil, internal.NewExternalError("settlement failed", internal.ErrCodeSettlementFailed, err)
	}

	logger.Info("payment settled", "status", applied.Status, "attempts", attempts)
	s.publish(ctx, settled, applied)

	result := &paymentgateway.SettlementResult{
		TransactionID:    settled.ID,
		GatewayReference: settled.GatewayReference,
		Status:           applied.Status,
		Outcome:          outcome.Status,
		ProcessedAt:      applied.ProcessedAt,
		Attempts:         attempts,
	}
	if applied.FailureReason != nil {
		result.FailureReason = *applied.FailureReason
	}
	return result, nil
}

func (s *Settler) buildSettlement(txn *payment.Transaction, outcome paymentgateway.Outcome) (payment.Settlement, error) {
	processedAt := s.now().UTC()

	details := parseGatewayDetails(txn.GatewayResponse)
	details.SettledAt = &processedAt
	details.Outcome = string(outcome.Status)

	settlement := payment.Settlement{
		TransactionID: txn.ID,
		Status:        payment.StatusCompleted,
		ProcessedAt:   processedAt,
	}
	if !outcome.Succeeded() {
		reason := outcome.FailureReason
		if reason == "" {
			reason = internal.DefaultFailureReason
		}
		details.FailureReason = reason
		settlement.Status = payment.StatusFailed
		settlement.FailureReason = &reason
	}

	raw, err := details.JSON()
	if err != nil {
		return payment.Settlement{}, err
	}
	settlement.GatewayResponse = raw
	return settlement, nil
}

func (s *Settler) deadLetter(ctx context.Context, job paymentgateway.SettlementJob, outcome paymentgateway.Outcome, attempts int, cause error) {
	ctx, cancel := internal.WithTimeout(internal.Detach(ctx), deadLetterTimeout)
	defer cancel()

	record := &payment.SettlementFailure{
		TransactionID:    job.TransactionID,
		GatewayReference: job.GatewayReference,
		Outcome:          string(outcome.Status),
		Attempts:         attempts,
		LastError:        cause.Error(),
	}
	if err := s.repo.RecordSettlementFailure(ctx, record); err != nil {
		s.logger.Error("failed to record settlement failure",
			"transaction_id", job.GatewayReference,
			"error", err,
			"cause", cause)
	}
}

func (s *Settler) publish(ctx context.Context, txn *payment.Transaction, applied payment.Settlement) {
	if s.publisher == nil {
		return
	}

	phone := parseGatewayDetails(txn.GatewayResponse).Phone
	var event events.Event
	if applied.Status == payment.StatusCompleted {
		event = events.NewPaymentCompletedEvent(txn.ID, txn.CustomerID, txn.GatewayReference, txn.Amount, txn.Currency, phone, applied.Status)
	} else {
		event = events.NewPaymentFailedEvent(txn.ID, txn.CustomerID, txn.GatewayReference, txn.Amount, txn.Currency, phone, applied.Status, *applied.FailureReason)
	}

	if err := s.publisher.Publish(internal.Detach(ctx), event); err != nil {
		s.logger.Warn("failed to publish settlement event", "error", err, "transaction_id", txn.GatewayReference)
	}
}
