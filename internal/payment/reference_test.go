package payment_test

import (
	"sync"
	"time"

	paymentpkg "github.com/frahmantamala/isp-billing/internal/payment"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("ReferenceGenerator", func() {
	ginkgo.It("should use the epoch milliseconds of the clock", func() {
		at := time.UnixMilli(1700000000123)
		g := paymentpkg.NewReferenceGenerator(func() time.Time { return at })

		gomega.Expect(g.Next()).To(gomega.Equal("TXN1700000000123"))
	})

	ginkgo.It("should never repeat within the same millisecond", func() {
		at := time.UnixMilli(1700000000123)
		g := paymentpkg.NewReferenceGenerator(func() time.Time { return at })

		gomega.Expect([]string{g.Next(), g.Next(), g.Next()}).To(gomega.Equal([]string{
			"TXN1700000000123", "TXN1700000000124", "TXN1700000000125",
		}))
	})

	ginkgo.It("should stay monotonic when the clock steps back", func() {
		current := time.UnixMilli(1700000000500)
		g := paymentpkg.NewReferenceGenerator(func() time.Time { return current })

		first := g.Next()
		current = time.UnixMilli(1700000000100)
		second := g.Next()

		gomega.Expect(first).To(gomega.Equal("TXN1700000000500"))
		gomega.Expect(second).To(gomega.Equal("TXN1700000000501"))
	})

	ginkgo.It("should hand out distinct references across goroutines", func() {
		g := paymentpkg.NewReferenceGenerator(nil)
		const n = 200

		var (
			mu   sync.Mutex
			wg   sync.WaitGroup
			seen = make(map[string]struct{}, n)
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ref := g.Next()
				mu.Lock()
				seen[ref] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()

		gomega.Expect(seen).To(gomega.HaveLen(n))
		for ref := range seen {
			gomega.Expect(ref).To(gomega.MatchRegexp(`^TXN\d+$`))
		}
	})
})
