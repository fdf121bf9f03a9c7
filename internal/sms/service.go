package sms

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/sms"
)

type Service struct {
	repo   RepositoryAPI
	sender Sender
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, sender Sender, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		sender: sender,
		now:    time.Now,
		logger: logger,
	}
}

// Dispatch records the message as pending, sends it and records the result.
func (s *Service) Dispatch(ctx context.Context, req SendRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	record := &sms.PaymentNotification{
		PaymentID:   req.PaymentID,
		PhoneNumber: req.PhoneNumber,
		Message:     req.Message,
		Status:      sms.StatusPending,
	}
	if err := s.repo.EnsurePending(ctx, record); err != nil {
		s.logger.Error("failed to record sms", "error", err, "payment_id", req.PaymentID)
		return internal.NewStoreError("failed to record SMS", err)
	}

	if err := s.sender.Send(ctx, req.PhoneNumber, req.Message); err != nil {
		s.logger.Warn("sms delivery failed", "error", err, "payment_id", req.PaymentID)
		if markErr := s.repo.MarkFailed(internal.Detach(ctx), req.PaymentID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark sms failed", "error", markErr, "payment_id", req.PaymentID)
		}
		return internal.NewExternalError("failed to send SMS", internal.ErrCodeSMSFailed, err)
	}

	if err := s.repo.MarkSent(ctx, req.PaymentID, s.now().UTC()); err != nil {
		s.logger.Error("failed to mark sms sent", "error", err, "payment_id", req.PaymentID)
		return internal.NewInternalError("failed to record SMS delivery", err)
	}

	s.logger.Info("sms sent", "payment_id", req.PaymentID)
	return nil
}
