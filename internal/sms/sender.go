package sms

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

var ErrDeliveryFailed = errors.New("sms gateway rejected the message")

// SimulatedSender stands in for the SMS gateway. Each send waits Delay and then
// fails with probability FailureRate.
type SimulatedSender struct {
	Delay       time.Duration
	FailureRate float64
	logger      *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedSender(delay time.Duration, failureRate float64, src rand.Source, logger *slog.Logger) *SimulatedSender {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &SimulatedSender{
		Delay:       delay,
		FailureRate: failureRate,
		logger:      logger,
		rng:         rand.New(src),
	}
}

func (s *SimulatedSender) Send(ctx context.Context, phone, message string) error {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.FailureRate {
		return ErrDeliveryFailed
	}

	s.logger.Debug("simulated sms delivered", "phone", phone, "length", len(message))
	return nil
}
