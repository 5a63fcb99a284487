package prices

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/models"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// fakeClock advances instantly whenever a caller waits on After
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// stalledClock never fires After, so waits only end through the context
type stalledClock struct {
	now time.Time
}

func (c stalledClock) Now() time.Time                       { return c.now }
func (c stalledClock) After(d time.Duration) <-chan time.Time { return make(chan time.Time) }

// mockProvider serves canned series and errors, counting calls per ticker.
// Queued errors are returned before the canned result.
type mockProvider struct {
	mu     sync.Mutex
	name   string
	series map[string]models.PriceSeries
	errs   map[string]error
	queued map[string][]error
	calls  map[string]int
	order  []string
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		name:   "mock",
		series: make(map[string]models.PriceSeries),
		errs:   make(map[string]error),
		queued: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchDailySeries(ctx context.Context, ticker string) (models.PriceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[ticker]++
	m.order = append(m.order, ticker)

	if q := m.queued[ticker]; len(q) > 0 {
		m.queued[ticker] = q[1:]
		return models.PriceSeries{}, q[0]
	}
	if err, ok := m.errs[ticker]; ok {
		return models.PriceSeries{}, err
	}
	if s, ok := m.series[ticker]; ok {
		return s, nil
	}
	return models.PriceSeries{}, models.NewPriceError(models.ErrorKindProviderData, ticker, "unknown symbol")
}

func (m *mockProvider) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ticker]
}

func (m *mockProvider) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// seriesOf builds a series from "YYYY-MM-DD" → close pairs
func seriesOf(ticker string, closes map[string]float64) models.PriceSeries {
	s := models.NewPriceSeries(ticker, "mock")
	for d, c := range closes {
		s.Closes[d] = c
	}
	return s
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateFormat, s)
	if err != nil {
		panic(err)
	}
	return t
}
