package alerts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nelfy/internal/core"
)

type fakeSource struct {
	mu       sync.Mutex
	budgets  []core.Budget
	upcoming []core.Transaction
	overdue  []core.Transaction
	unread   int64
	fail     map[string]bool
	calls    atomic.Int32
}

func (f *fakeSource) err(part string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[part] {
		return errors.New(part + " down")
	}
	return nil
}

func (f *fakeSource) BudgetAlerts(ctx context.Context) ([]core.Budget, error) {
	f.calls.Add(1)
	if err := f.err("budgets"); err != nil {
		return nil, err
	}
	return f.budgets, nil
}

func (f *fakeSource) Upcoming(ctx context.Context) ([]core.Transaction, error) {
	if err := f.err("upcoming"); err != nil {
		return nil, err
	}
	return f.upcoming, nil
}

func (f *fakeSource) Overdue(ctx context.Context) ([]core.Transaction, error) {
	if err := f.err("overdue"); err != nil {
		return nil, err
	}
	return f.overdue, nil
}

func (f *fakeSource) UnreadCount(ctx context.Context) (int64, error) {
	if err := f.err("unread"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *fakeSource) setFail(part string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = map[string]bool{}
	}
	f.fail[part] = v
}

func newSource() *fakeSource {
	return &fakeSource{
		budgets:  []core.Budget{{ID: 1, Name: "Mercado", LimitAmount: decimal.NewFromInt(800), AlertTriggered: true}},
		upcoming: []core.Transaction{{ID: 10, Description: "Luz"}},
		overdue:  []core.Transaction{{ID: 11, Description: "Internet", IsOverdue: true}},
		unread:   3,
	}
}

func TestMonitor_RefreshBuildsSnapshot(t *testing.T) {
	m := NewMonitor(newSource(), time.Hour)
	assert.False(t, m.Snapshot().Loaded())

	require.NoError(t, m.Refresh(context.Background()))
	snap := m.Snapshot()
	assert.True(t, snap.Loaded())
	assert.True(t, snap.HasAlerts())
	assert.Len(t, snap.Budgets, 1)
	assert.Len(t, snap.Upcoming, 1)
	assert.Len(t, snap.Overdue, 1)
	assert.EqualValues(t, 3, snap.Unread)
}

func TestMonitor_FailedPartKeepsPreviousValue(t *testing.T) {
	src := newSource()
	m := NewMonitor(src, time.Hour)
	require.NoError(t, m.Refresh(context.Background()))

	src.setFail("unread", true)
	src.mu.Lock()
	src.unread = 99
	src.overdue = nil
	src.mu.Unlock()

	require.NoError(t, m.Refresh(context.Background()), "poll errors are swallowed")
	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.Unread)
	assert.Empty(t, snap.Overdue)
}

func TestMonitor_AllPartsFailingLeavesSnapshotUnloaded(t *testing.T) {
	src := newSource()
	for _, p := range []string{"budgets", "upcoming", "overdue", "unread"} {
		src.setFail(p, true)
	}
	m := NewMonitor(src, time.Hour)
	require.NoError(t, m.Refresh(context.Background()))
	assert.False(t, m.Snapshot().Loaded())
}

func TestMonitor_StartPollsImmediately(t *testing.T) {
	src := newSource()
	m := NewMonitor(src, time.Hour)
	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool { return m.Snapshot().Loaded() }, time.Second, 5*time.Millisecond)
}

func TestMonitor_SetUnreadClamps(t *testing.T) {
	m := NewMonitor(newSource(), time.Hour)
	m.SetUnread(-2)
	assert.Zero(t, m.Snapshot().Unread)
}

func TestRegistry_ForReusesAndStops(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)
	r.Start(context.Background())
	defer r.Shutdown()

	src := newSource()
	a := r.For("session-a", src)
	assert.Same(t, a, r.For("session-a", src))
	r.For("session-b", src)
	assert.Equal(t, 2, r.Len())

	r.Stop("session-a")
	_, ok := r.Lookup("session-a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_ReapStopsIdleMonitors(t *testing.T) {
	clock := &testClock{now: time.Now()}
	r := NewRegistry(time.Hour, 10*time.Minute)
	r.now = clock.Now
	defer r.Shutdown()

	src := newSource()
	r.For("idle", src)
	busy := r.For("busy", src)

	clock.Advance(11 * time.Minute)
	busy.Snapshot()

	assert.Equal(t, 1, r.Reap())
	_, ok := r.Lookup("idle")
	assert.False(t, ok)
	_, ok = r.Lookup("busy")
	assert.True(t, ok)
}

func TestRegistry_ShutdownStopsAll(t *testing.T) {
	r := NewRegistry(time.Millisecond, time.Hour)
	r.Start(context.Background())
	src := newSource()
	r.For("a", src)
	r.For("b", src)

	r.Shutdown()
	assert.Zero(t, r.Len())
	calls := src.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, src.calls.Load(), "no polls after shutdown")
}
