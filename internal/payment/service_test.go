package payment_test

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	"github.com/frahmantamala/isp-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/isp-billing/internal/core/events"
	paymentpkg "github.com/frahmantamala/isp-billing/internal/payment"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var referencePattern = regexp.MustCompile(`^TXN\d+$`)

func validRequest() paymentpkg.InitiatePaymentRequest {
	return paymentpkg.InitiatePaymentRequest{
		Phone:            "254700000000",
		Amount:           decimal.NewFromInt(500),
		AccountReference: "ACC1",
		Description:      "data bundle",
	}
}

var _ = ginkgo.Describe("Payment Service", func() {
	var (
		ctx       context.Context
		repo      *mockRepository
		scheduler *mockScheduler
		publisher *mockPublisher
		service   *paymentpkg.Service
		now       time.Time
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		scheduler = &mockScheduler{}
		publisher = &mockPublisher{}
		now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		service = paymentpkg.NewService(repo, scheduler, publisher, "KES", testLogger(),
			paymentpkg.WithClock(func() time.Time { return now }))
	})

	ginkgo.Describe("Initiate", func() {
		ginkgo.Context("with a valid request", func() {
			ginkgo.It("should store a processing transaction and acknowledge it", func() {
				// When
				resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(resp.Success).To(gomega.BeTrue())
				gomega.Expect(resp.Status).To(gomega.Equal(payment.StatusProcessing))
				gomega.Expect(resp.Message).To(gomega.Equal(paymentpkg.AcknowledgementMessage))
				gomega.Expect(resp.TransactionID).To(gomega.MatchRegexp(`^TXN\d+$`))
				gomega.Expect(resp.TransactionID).To(gomega.Equal(fmt.Sprintf("TXN%d", now.UnixMilli())))

				stored, err := repo.GetByReference(ctx, resp.TransactionID)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(stored.CustomerID).To(gomega.Equal(int64(42)))
				gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusProcessing))
				gomega.Expect(stored.Currency).To(gomega.Equal("KES"))
				gomega.Expect(stored.TransactionType).To(gomega.Equal(payment.TypePayment))
				gomega.Expect(stored.Amount.Equal(decimal.NewFromInt(500))).To(gomega.BeTrue())
				gomega.Expect(stored.FailureReason).To(gomega.BeNil())
				gomega.Expect(stored.ProcessedAt).To(gomega.BeNil())
				gomega.Expect(string(stored.GatewayResponse)).To(gomega.ContainSubstring(`"account_reference":"ACC1"`))
			})

			ginkgo.It("should schedule settlement with the transaction details", func() {
				resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				jobs := scheduler.Jobs()
				gomega.Expect(jobs).To(gomega.HaveLen(1))
				gomega.Expect(jobs[0].GatewayReference).To(gomega.Equal(resp.TransactionID))
				gomega.Expect(jobs[0].CustomerID).To(gomega.Equal(int64(42)))
				gomega.Expect(jobs[0].TransactionID).To(gomega.Equal(int64(1)))
				gomega.Expect(jobs[0].InitiatedAt).To(gomega.BeTemporally("==", now))
				gomega.Expect(jobs[0].Amount.Equal(decimal.NewFromInt(500))).To(gomega.BeTrue())
			})

			ginkgo.It("should publish an initiated event", func() {
				_, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(publisher.Types()).To(gomega.ConsistOf(events.EventTypePaymentInitiated))
			})

			ginkgo.It("should still acknowledge when scheduling fails", func() {
				scheduler.err = fmt.Errorf("scheduler is shut down")

				resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(resp.Status).To(gomega.Equal(payment.StatusProcessing))
				gomega.Expect(repo.count()).To(gomega.Equal(1))
			})
		})

		ginkgo.Context("with an invalid request", func() {
			ginkgo.DescribeTable("should reject without storing",
				func(mutate func(*paymentpkg.InitiatePaymentRequest), message string) {
					req := validRequest()
					mutate(&req)

					resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: req})

					gomega.Expect(resp).To(gomega.BeNil())
					appErr, ok := internal.IsAppError(err)
					gomega.Expect(ok).To(gomega.BeTrue())
					gomega.Expect(appErr.StatusCode).To(gomega.Equal(400))
					gomega.Expect(appErr.GetDetailedMessage()).To(gomega.ContainSubstring(message))
					gomega.Expect(repo.count()).To(gomega.Equal(0))
					gomega.Expect(scheduler.Jobs()).To(gomega.BeEmpty())
				},
				ginkgo.Entry("missing phone", func(r *paymentpkg.InitiatePaymentRequest) { r.Phone = "" }, "phone is required"),
				ginkgo.Entry("malformed phone", func(r *paymentpkg.InitiatePaymentRequest) { r.Phone = "07-abc" }, "phone must be 9 to 15 digits"),
				ginkgo.Entry("zero amount", func(r *paymentpkg.InitiatePaymentRequest) { r.Amount = decimal.Zero }, "amount is required"),
				ginkgo.Entry("negative amount", func(r *paymentpkg.InitiatePaymentRequest) { r.Amount = decimal.NewFromInt(-5) }, "amount must be greater than 0"),
				ginkgo.Entry("sub-cent amount", func(r *paymentpkg.InitiatePaymentRequest) { r.Amount = decimal.RequireFromString("0.001") }, "amount must have at most 2 decimal places"),
				ginkgo.Entry("amount beyond the column", func(r *paymentpkg.InitiatePaymentRequest) { r.Amount = decimal.RequireFromString("1e20") }, "amount must not exceed 999999999999.99"),
				ginkgo.Entry("missing account reference", func(r *paymentpkg.InitiatePaymentRequest) { r.AccountReference = "  " }, "account_reference is required"),
			)
		})

		ginkgo.Context("when the store fails", func() {
			ginkgo.It("should return a 400 without the store's message", func() {
				repo.createError = errStoreDown

				resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})

				gomega.Expect(resp).To(gomega.BeNil())
				appErr, ok := internal.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				status, body := appErr.ToHTTPResponse()
				gomega.Expect(status).To(gomega.Equal(400))
				gomega.Expect(body).To(gomega.Equal(internal.Response{Error: "failed to initiate payment"}))
				gomega.Expect(fmt.Sprint(body)).ToNot(gomega.ContainSubstring("10.0.0.5"))
				gomega.Expect(scheduler.Jobs()).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when a reference collides", func() {
			ginkgo.It("should retry with a fresh reference", func() {
				repo.duplicateCreates = 2

				resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(resp.TransactionID).To(gomega.Equal(fmt.Sprintf("TXN%d", now.UnixMilli()+2)))
				gomega.Expect(repo.count()).To(gomega.Equal(1))
			})

			ginkgo.It("should give up after repeated collisions", func() {
				repo.duplicateCreates = 10

				_, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})

				appErr, ok := internal.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeStore))
			})
		})

		ginkgo.Context("with an idempotency key", func() {
			ginkgo.It("should return the original transaction on replay", func() {
				cmd := paymentpkg.InitiateCommand{CustomerID: 42, IdempotencyKey: "order-7", Request: validRequest()}

				first, err := service.Initiate(ctx, cmd)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				second, err := service.Initiate(ctx, cmd)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				gomega.Expect(second.TransactionID).To(gomega.Equal(first.TransactionID))
				gomega.Expect(repo.count()).To(gomega.Equal(1))
				gomega.Expect(scheduler.Jobs()).To(gomega.HaveLen(1))
			})

			ginkgo.It("should scope keys per customer", func() {
				_, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, IdempotencyKey: "order-7", Request: validRequest()})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				_, err = service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 43, IdempotencyKey: "order-7", Request: validRequest()})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				gomega.Expect(repo.count()).To(gomega.Equal(2))
			})
		})

		ginkgo.It("should give concurrent initiations distinct references", func() {
			// Given
			service = paymentpkg.NewService(repo, scheduler, publisher, "KES", testLogger())
			const n = 50
			var wg sync.WaitGroup
			refs := make(chan string, n)

			// When
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer ginkgo.GinkgoRecover()
					resp, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})
					gomega.Expect(err).ToNot(gomega.HaveOccurred())
					refs <- resp.TransactionID
				}()
			}
			wg.Wait()
			close(refs)

			// Then
			seen := map[string]bool{}
			for ref := range refs {
				gomega.Expect(referencePattern.MatchString(ref)).To(gomega.BeTrue())
				seen[ref] = true
			}
			gomega.Expect(seen).To(gomega.HaveLen(n))
			gomega.Expect(repo.count()).To(gomega.Equal(n))
		})
	})

	ginkgo.Describe("RecoverPending", func() {
		ginkgo.It("should reschedule only processing transactions", func() {
			// Given
			for i := 0; i < 3; i++ {
				_, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			}
			reason := "Payment timeout or insufficient funds"
			gomega.Expect(repo.Settle(ctx, payment.Settlement{TransactionID: 2, Status: payment.StatusFailed, FailureReason: &reason, ProcessedAt: now}, nil)).To(gomega.Succeed())
			fresh := &mockScheduler{}
			recovering := paymentpkg.NewService(repo, fresh, nil, "KES", testLogger())

			// When
			count, err := recovering.RecoverPending(ctx)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(2))
			jobs := fresh.Jobs()
			gomega.Expect(jobs).To(gomega.HaveLen(2))
			gomega.Expect(jobs[0].TransactionID).To(gomega.Equal(int64(1)))
			gomega.Expect(jobs[1].TransactionID).To(gomega.Equal(int64(3)))
			gomega.Expect(jobs[0].InitiatedAt).To(gomega.BeTemporally("==", now))
		})

		ginkgo.It("should report store errors", func() {
			repo.listError = errStoreDown
			_, err := service.RecoverPending(ctx)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("Lookups", func() {
		ginkgo.BeforeEach(func() {
			_, err := service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 42, Request: validRequest()})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = service.Initiate(ctx, paymentpkg.InitiateCommand{CustomerID: 7, Request: validRequest()})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should expose the stored phone and reference in the view", func() {
			view, err := service.GetByReference(ctx, fmt.Sprintf("TXN%d", now.UnixMilli()))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(view.Phone).To(gomega.Equal("254700000000"))
			gomega.Expect(view.Description).To(gomega.Equal("data bundle"))
			gomega.Expect(view.CustomerID).To(gomega.Equal(int64(42)))
		})

		ginkgo.It("should return not found for an unknown reference", func() {
			_, err := service.GetByReference(ctx, "TXN1")
			gomega.Expect(err).To(gomega.Equal(paymentpkg.ErrTransactionNotFound))
		})

		ginkgo.It("should list only the caller's transactions", func() {
			views, err := service.List(ctx, 42, paymentpkg.ListQuery{})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(views).To(gomega.HaveLen(1))
			gomega.Expect(views[0].CustomerID).To(gomega.Equal(int64(42)))
		})

		ginkgo.It("should reject an unknown status filter", func() {
			_, err := service.List(ctx, 42, paymentpkg.ListQuery{Status: "refunded"})
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("status must be one of"))
		})

		ginkgo.It("should reject an oversized page", func() {
			_, err := service.List(ctx, 42, paymentpkg.ListQuery{Limit: 1000})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should summarise by status", func() {
			stats, err := service.Stats(ctx)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stats).To(gomega.HaveLen(1))
			gomega.Expect(stats[0].Status).To(gomega.Equal(payment.StatusProcessing))
			gomega.Expect(stats[0].Count).To(gomega.Equal(int64(2)))
			gomega.Expect(stats[0].Total.Equal(decimal.NewFromInt(1000))).To(gomega.BeTrue())
		})
	})
})
