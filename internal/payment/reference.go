package payment

import (
	"strconv"
	"sync"
	"time"
)

const ReferencePrefix = "TXN"

// ReferenceGenerator issues TXN<digits> gateway references. The digits are epoch
// milliseconds, bumped past the previous value so references never repeat within
// a process even when several are issued in the same millisecond.
type ReferenceGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewReferenceGenerator(now func() time.Time) *ReferenceGenerator {
	if now == nil {
		now = time.Now
	}
	return &ReferenceGenerator{now: now}
}

func (g *ReferenceGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return ReferencePrefix + strconv.FormatInt(ms, 10)
}
