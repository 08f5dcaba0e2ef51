package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func waitForWaiters(t *testing.T, c *fakeClock, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.pending() >= n }, 2*time.Second, time.Millisecond)
}

func TestAcquireWithinBudget(t *testing.T) {
	g := New(Options{Default: Limit{RequestsPerWindow: 10, TokensPerWindow: 1000}, Clock: newFakeClock()})

	require.NoError(t, g.Acquire(context.Background(), "gpt-4", 400))
	require.NoError(t, g.Acquire(context.Background(), "gpt-4", 600))

	u := g.Usage("gpt-4")
	assert.Equal(t, 2, u.Reservations)
	assert.Equal(t, 1000, u.ReservedTokens)
	assert.Equal(t, 1000, g.WindowTokens("gpt-4"))
}

func TestAcquireSuspendsUntilWindowRolls(t *testing.T) {
	const budget = 100
	clock := newFakeClock()
	g := New(Options{Default: Limit{TokensPerWindow: budget}, Clock: clock})

	require.NoError(t, g.Acquire(context.Background(), "gpt-4", budget))

	done := make(chan error, 1)
	go func() { done <- g.Acquire(context.Background(), "gpt-4", 1) }()

	waitForWaiters(t, clock, 1)
	select {
	case err := <-done:
		t.Fatalf("N+1th token admitted early: %v", err)
	default:
	}
	assert.Equal(t, budget, g.WindowTokens("gpt-4"))

	clock.Advance(59 * time.Second)
	select {
	case err := <-done:
		t.Fatalf("admitted before the window rolled: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not resume after the window rolled")
	}

	assert.Equal(t, 1, g.WindowTokens("gpt-4"))
	assert.Equal(t, budget+1, g.Usage("gpt-4").ReservedTokens)
}

func TestAcquireRequestLimit(t *testing.T) {
	clock := newFakeClock()
	g := New(Options{Default: Limit{RequestsPerWindow: 2}, Clock: clock})

	require.NoError(t, g.Acquire(context.Background(), "m", 1))
	clock.Advance(10 * time.Second)
	require.NoError(t, g.Acquire(context.Background(), "m", 1))

	done := make(chan error, 1)
	go func() { done <- g.Acquire(context.Background(), "m", 1) }()
	waitForWaiters(t, clock, 1)

	// The first sample leaves the window 50s later.
	clock.Advance(50 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request-limited acquire did not resume")
	}
}

func TestAcquireWindowNeverExceedsBudget(t *testing.T) {
	const budget = 50
	clock := newFakeClock()
	g := New(Options{Default: Limit{TokensPerWindow: budget}, Clock: clock})

	sizes := []int{20, 20, 5, 30, 10, 25, 50, 1}
	for _, n := range sizes {
		done := make(chan error, 1)
		go func(n int) { done <- g.Acquire(context.Background(), "m", n) }(n)

		for admitted := false; !admitted; {
			select {
			case err := <-done:
				require.NoError(t, err)
				admitted = true
			case <-time.After(10 * time.Millisecond):
				clock.Advance(5 * time.Second)
			}
			assert.LessOrEqual(t, g.WindowTokens("m"), budget)
		}
	}
}

func TestAcquireRejectsOversizedRequest(t *testing.T) {
	g := New(Options{Default: Limit{TokensPerWindow: 10}})
	err := g.Acquire(context.Background(), "m", 11)
	require.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Equal(t, 0, g.Usage("m").Reservations)
}

func TestAcquireContextCancelled(t *testing.T) {
	clock := newFakeClock()
	g := New(Options{Default: Limit{TokensPerWindow: 10}, Clock: clock})
	require.NoError(t, g.Acquire(context.Background(), "m", 10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Acquire(ctx, "m", 5) }()
	waitForWaiters(t, clock, 1)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire ignored cancellation")
	}
	assert.Equal(t, 10, g.Usage("m").ReservedTokens)
}

func TestAcquireConcurrent(t *testing.T) {
	const (
		budget  = 5000
		callers = 50
	)
	g := New(Options{Default: Limit{RequestsPerWindow: callers, TokensPerWindow: budget}})

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.Acquire(context.Background(), "gpt-4", budget/callers)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	u := g.Usage("gpt-4")
	assert.Equal(t, callers, u.Reservations)
	assert.Equal(t, budget, u.ReservedTokens)
}

func TestAcquireModelsAreIndependent(t *testing.T) {
	g := New(Options{
		Default:  Limit{TokensPerWindow: 10},
		PerModel: map[string]Limit{"big": {TokensPerWindow: 1000}},
		Clock:    newFakeClock(),
	})
	require.NoError(t, g.Acquire(context.Background(), "small", 10))
	require.NoError(t, g.Acquire(context.Background(), "big", 900))
	assert.Equal(t, 10, g.WindowTokens("small"))
	assert.Equal(t, 900, g.WindowTokens("big"))
}

func TestRecordAndSummary(t *testing.T) {
	g := New(Options{})

	cost := g.Record("gpt-4", 1000, 500)
	assert.InDelta(t, 0.03+0.03, cost, 1e-9)
	g.Record("gpt-3.5-turbo", 2000, 1000)

	s := g.Summary()
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 4500, s.TotalTokens)
	assert.InDelta(t, 0.06+0.004, s.TotalCost, 1e-9)
	assert.InDelta(t, (0.06+0.004)/2, s.AverageCostPerRequest, 1e-9)
	assert.Equal(t, []string{"gpt-3.5-turbo", "gpt-4"}, s.ModelNames())
	assert.Equal(t, 1500, s.Models["gpt-4"].TotalTokens())
}

func TestSummaryEmpty(t *testing.T) {
	s := New(Options{}).Summary()
	assert.Zero(t, s.TotalCost)
	assert.Zero(t, s.AverageCostPerRequest)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.LimitsConfig{
		RequestsPerMinute: 60,
		TokensPerMinute:   90000,
		Window:            time.Minute,
		Models: map[string]config.ModelLimit{
			"gpt-4": {TokensPerMinute: 10000},
		},
	})
	assert.Equal(t, Limit{RequestsPerWindow: 60, TokensPerWindow: 90000}, opts.Default)
	assert.Equal(t, Limit{RequestsPerWindow: 60, TokensPerWindow: 10000}, opts.PerModel["gpt-4"])
}
