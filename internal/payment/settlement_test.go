package payment_test

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/notification"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/isp-billing/internal/core/events"
	paymentpkg "github.com/frahmantamala/isp-billing/internal/payment"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// flakyRepository fails the first settleFailures Settle calls.
type flakyRepository struct {
	*mockRepository
	mu             sync.Mutex
	settleFailures int
	settleCalls    int
}

func (f *flakyRepository) Settle(ctx context.Context, s payment.Settlement, n *notification.Notification) error {
	f.mu.Lock()
	f.settleCalls++
	fail := f.settleFailures > 0
	if fail {
		f.settleFailures--
	}
	f.mu.Unlock()

	if fail {
		return errStoreDown
	}
	return f.mockRepository.Settle(ctx, s, n)
}

var _ = ginkgo.Describe("Settler", func() {
	var (
		ctx       context.Context
		repo      *mockRepository
		publisher *mockPublisher
		service   *paymentpkg.Service
		job       paymentgateway.SettlementJob
		cfg       paymentpkg.SettlerConfig
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		publisher = &mockPublisher{}
		cfg = paymentpkg.SettlerConfig{MaxRetries: 2, RetryBaseDelay: time.Millisecond}

		scheduler := &mockScheduler{}
		service = paymentpkg.NewService(repo, scheduler, nil, "KES", testLogger())
		_, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		job = scheduler.Jobs()[0]
	})

	ginkgo.Context("when the outcome is success", func() {
		ginkgo.It("should complete the transaction with a normal notification", func() {
			// Given
			settler := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysSucceed}, publisher, cfg, testLogger())

			// When
			result, err := settler.Settle(ctx, job)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Status).To(gomega.Equal(payment.StatusCompleted))
			gomega.Expect(result.Attempts).To(gomega.Equal(1))
			gomega.Expect(result.FailureReason).To(gomega.BeEmpty())

			stored, _ := repo.GetByID(ctx, job.TransactionID)
			gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusCompleted))
			gomega.Expect(stored.FailureReason).To(gomega.BeNil())
			gomega.Expect(stored.ProcessedAt).ToNot(gomega.BeNil())
			gomega.Expect(string(stored.GatewayResponse)).To(gomega.ContainSubstring(`"outcome":"SUCCESS"`))

			gomega.Expect(repo.notifications).To(gomega.HaveLen(1))
			n := repo.notifications[0]
			gomega.Expect(n.UserID).To(gomega.Equal(int64(42)))
			gomega.Expect(n.Channel).To(gomega.Equal(notification.ChannelPayment))
			gomega.Expect(n.EventType).To(gomega.Equal(notification.EventPaymentSuccess))
			gomega.Expect(n.Priority).To(gomega.Equal(notification.PriorityNormal))
			gomega.Expect(n.Title).To(gomega.Equal("Payment Successful"))
			gomega.Expect(n.Message).To(gomega.Equal("Your payment of 500.00 has been processed successfully."))
			gomega.Expect(n.Data).To(gomega.HaveKeyWithValue("transaction_id", job.GatewayReference))
			gomega.Expect(n.Data).To(gomega.HaveKeyWithValue("amount", "500.00"))

			gomega.Expect(publisher.Types()).To(gomega.ConsistOf(events.EventTypePaymentCompleted))
		})
	})

	ginkgo.Context("when the outcome is failure", func() {
		ginkgo.It("should fail the transaction with a high priority notification", func() {
			settler := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysFail}, publisher, cfg, testLogger())

			result, err := settler.Settle(ctx, job)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Status).To(gomega.Equal(payment.StatusFailed))
			gomega.Expect(result.FailureReason).To(gomega.Equal("Payment timeout or insufficient funds"))

			stored, _ := repo.GetByID(ctx, job.TransactionID)
			gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusFailed))
			gomega.Expect(*stored.FailureReason).To(gomega.Equal("Payment timeout or insufficient funds"))
			gomega.Expect(stored.ProcessedAt).ToNot(gomega.BeNil())

			gomega.Expect(repo.notifications).To(gomega.HaveLen(1))
			gomega.Expect(repo.notifications[0].EventType).To(gomega.Equal(notification.EventPaymentFailed))
			gomega.Expect(repo.notifications[0].Priority).To(gomega.Equal(notification.PriorityHigh))
			gomega.Expect(repo.notifications[0].Title).To(gomega.Equal("Payment Failed"))

			gomega.Expect(publisher.Types()).To(gomega.ConsistOf(events.EventTypePaymentFailed))
		})

		ginkgo.It("should fall back to the default reason", func() {
			outcome := &fixedOutcome{outcome: paymentgateway.Outcome{Status: paymentgateway.OutcomeFailed}}
			settler := paymentpkg.NewSettler(repo, outcome, nil, cfg, testLogger())

			result, err := settler.Settle(ctx, job)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.FailureReason).To(gomega.Equal(internal.DefaultFailureReason))
		})
	})

	ginkgo.Context("when the transaction is already terminal", func() {
		ginkgo.It("should not write a second transition or notification", func() {
			settler := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysSucceed}, publisher, cfg, testLogger())
			_, err := settler.Settle(ctx, job)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			again := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysFail}, publisher, cfg, testLogger())
			result, err := again.Settle(ctx, job)

			gomega.Expect(result).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.Equal(paymentpkg.ErrAlreadySettled))
			stored, _ := repo.GetByID(ctx, job.TransactionID)
			gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusCompleted))
			gomega.Expect(repo.notifications).To(gomega.HaveLen(1))
			gomega.Expect(repo.failures).To(gomega.BeEmpty())
		})

		ginkgo.It("should settle exactly once under concurrent runs", func() {
			settler := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysSucceed}, publisher, cfg, testLogger())

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := settler.Settle(ctx, job); err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			gomega.Expect(successes).To(gomega.Equal(1))
			gomega.Expect(repo.notifications).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Context("when the store is flaky", func() {
		ginkgo.It("should retry and keep the outcome drawn first", func() {
			flaky := &flakyRepository{mockRepository: repo, settleFailures: 2}
			outcome := &fixedOutcome{outcome: alwaysFail}
			settler := paymentpkg.NewSettler(flaky, outcome, publisher, cfg, testLogger())

			result, err := settler.Settle(ctx, job)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Attempts).To(gomega.Equal(3))
			gomega.Expect(result.Status).To(gomega.Equal(payment.StatusFailed))
			gomega.Expect(outcome.draws).To(gomega.Equal(1))
			gomega.Expect(repo.notifications).To(gomega.HaveLen(1))
		})

		ginkgo.It("should dead-letter after exhausting retries", func() {
			flaky := &flakyRepository{mockRepository: repo, settleFailures: 100}
			settler := paymentpkg.NewSettler(flaky, &fixedOutcome{outcome: alwaysSucceed}, publisher, cfg, testLogger())

			result, err := settler.Settle(ctx, job)

			gomega.Expect(result).To(gomega.BeNil())
			appErr, ok := internal.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(internal.ErrCodeSettlementFailed))
			gomega.Expect(flaky.settleCalls).To(gomega.Equal(3))

			gomega.Expect(repo.failures).To(gomega.HaveLen(1))
			gomega.Expect(repo.failures[0].TransactionID).To(gomega.Equal(job.TransactionID))
			gomega.Expect(repo.failures[0].Attempts).To(gomega.Equal(3))
			gomega.Expect(repo.failures[0].Outcome).To(gomega.Equal("SUCCESS"))

			stored, _ := repo.GetByID(ctx, job.TransactionID)
			gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusProcessing))
			gomega.Expect(publisher.Types()).To(gomega.BeEmpty())
		})

		ginkgo.It("should leave no dead-letter row when cancelled mid-retry", func() {
			flaky := &flakyRepository{mockRepository: repo, settleFailures: 100}
			slow := paymentpkg.SettlerConfig{MaxRetries: 10, RetryBaseDelay: 10 * time.Millisecond}
			settler := paymentpkg.NewSettler(flaky, &fixedOutcome{outcome: alwaysSucceed}, publisher, slow, testLogger())

			cancelCtx, cancel := context.WithCancel(ctx)
			time.AfterFunc(20*time.Millisecond, cancel)
			defer cancel()

			result, err := settler.Settle(cancelCtx, job)

			gomega.Expect(result).To(gomega.BeNil())
			gomega.Expect(err).To(gomega.MatchError(context.Canceled))
			gomega.Expect(flaky.settleCalls).To(gomega.BeNumerically("<", 11))
			gomega.Expect(repo.failures).To(gomega.BeEmpty())

			stored, _ := repo.GetByID(ctx, job.TransactionID)
			gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusProcessing))
			gomega.Expect(publisher.Types()).To(gomega.BeEmpty())
		})
	})

	ginkgo.It("should reject an incomplete job", func() {
		settler := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysSucceed}, nil, cfg, testLogger())
		_, err := settler.Settle(ctx, paymentgateway.SettlementJob{})
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("should report a vanished transaction without retrying", func() {
		settler := paymentpkg.NewSettler(repo, &fixedOutcome{outcome: alwaysSucceed}, nil, cfg, testLogger())
		job.TransactionID = 999
		_, err := settler.Settle(ctx, job)
		gomega.Expect(err).To(gomega.Equal(paymentpkg.ErrTransactionNotFound))
		gomega.Expect(repo.failures).To(gomega.BeEmpty())
	})
})
