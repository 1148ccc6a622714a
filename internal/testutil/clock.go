package testutil

import (
	"strconv"
	"sync"
	"time"

	"filesync/internal/filesync"
)

// StubClock and StubIDGenerator make reports reproducible: analyze stamps
// AnalyzedAt from the clock and hands out "id-1", "id-2", ... in the order
// rows are emitted, so two runs over the same tree produce equal reports.
// Both are safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var (
	_ filesync.Clock       = (*StubClock)(nil)
	_ filesync.IDGenerator = (*StubIDGenerator)(nil)
)

func NewStubClock(t time.Time) *StubClock { return &StubClock{now: t} }

// FixedClock starts at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward, e.g. to observe a refreshed ignore entry.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator { return &StubIDGenerator{} }

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "id-" + strconv.Itoa(g.next)
}
