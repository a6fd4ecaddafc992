// Package alerts keeps a periodically refreshed snapshot of the dashboard
// alerts of each signed-in user: budget alerts, upcoming and overdue bills
// and the unread notification count.
package alerts

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nelfy/internal/core"
	"nelfy/internal/log"
	"nelfy/internal/poll"
)

// DefaultInterval is how often a monitor polls the backend.
const DefaultInterval = 30 * time.Second

// Source is the slice of the backend a monitor polls.
type Source interface {
	BudgetAlerts(ctx context.Context) ([]core.Budget, error)
	Upcoming(ctx context.Context) ([]core.Transaction, error)
	Overdue(ctx context.Context) ([]core.Transaction, error)
	UnreadCount(ctx context.Context) (int64, error)
}

// Snapshot is the latest known alert state. Each part keeps its previous
// value when its poll fails.
type Snapshot struct {
	Budgets   []core.Budget
	Upcoming  []core.Transaction
	Overdue   []core.Transaction
	Unread    int64
	UpdatedAt time.Time
}

// Loaded reports whether at least one poll has completed.
func (s Snapshot) Loaded() bool {
	return !s.UpdatedAt.IsZero()
}

// HasAlerts reports whether anything needs the user's attention.
func (s Snapshot) HasAlerts() bool {
	return len(s.Budgets) > 0 || len(s.Overdue) > 0
}

// Monitor polls one user's alerts in the background.
type Monitor struct {
	src   Source
	sched *poll.Scheduler
	now   func() time.Time

	mu       sync.RWMutex
	snap     Snapshot
	lastSeen time.Time
}

// NewMonitor creates a monitor polling src every interval. It does nothing
// until started.
func NewMonitor(src Source, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{src: src, now: time.Now}
	m.lastSeen = m.now()
	m.sched = poll.New("alerts", interval, m.Refresh)
	return m
}

// Start begins polling under ctx.
func (m *Monitor) Start(ctx context.Context) {
	m.sched.Start(ctx)
}

// Stop ends polling and waits for an in-flight poll to return.
func (m *Monitor) Stop() {
	m.sched.Stop()
}

// Snapshot returns the latest state and marks the monitor as in use.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = m.now()
	return m.snap
}

// IdleSince returns when the snapshot was last read.
func (m *Monitor) IdleSince() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}

// Refresh polls every part once, concurrently. Failures are logged and
// leave that part unchanged, so Refresh always returns nil.
func (m *Monitor) Refresh(ctx context.Context) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAlerts)

	var (
		next    Snapshot
		partsMu sync.Mutex
		ok      = map[string]bool{}
	)
	record := func(part string, err error, apply func()) error {
		if err != nil {
			logger.DebugContext(ctx, "Alert poll failed", log.FieldEndpoint, part, log.FieldError, err.Error())
			return nil
		}
		partsMu.Lock()
		defer partsMu.Unlock()
		apply()
		ok[part] = true
		return nil
	}

	var g errgroup.Group
	g.Go(func() error {
		v, err := m.src.BudgetAlerts(ctx)
		return record("budgets", err, func() { next.Budgets = v })
	})
	g.Go(func() error {
		v, err := m.src.Upcoming(ctx)
		return record("upcoming", err, func() { next.Upcoming = v })
	})
	g.Go(func() error {
		v, err := m.src.Overdue(ctx)
		return record("overdue", err, func() { next.Overdue = v })
	})
	g.Go(func() error {
		v, err := m.src.UnreadCount(ctx)
		return record("unread", err, func() { next.Unread = v })
	})
	_ = g.Wait()

	if len(ok) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ok["budgets"] {
		m.snap.Budgets = next.Budgets
	}
	if ok["upcoming"] {
		m.snap.Upcoming = next.Upcoming
	}
	if ok["overdue"] {
		m.snap.Overdue = next.Overdue
	}
	if ok["unread"] {
		m.snap.Unread = next.Unread
	}
	m.snap.UpdatedAt = m.now()
	return nil
}

// SetUnread overrides the unread count after a local mark-as-read, until
// the next poll confirms it.
func (m *Monitor) SetUnread(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		n = 0
	}
	m.snap.Unread = n
}
