package alerts

import (
	"context"
	"sync"
	"time"

	"nelfy/internal/log"
	"nelfy/internal/poll"
)

// Registry owns the monitors of all signed-in sessions. Monitors start on
// first use, stop on logout and are reaped by a janitor once nobody has
// read them for the idle timeout.
type Registry struct {
	interval time.Duration
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	monitors map[string]*Monitor
	janitor  *poll.Scheduler
}

// NewRegistry creates a registry whose monitors poll every interval and
// are stopped after idle without reads.
func NewRegistry(interval, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	r := &Registry{
		interval: interval,
		idle:     idle,
		now:      time.Now,
		ctx:      context.Background(),
		monitors: make(map[string]*Monitor),
	}
	r.janitor = poll.New("alerts-janitor", idle/2, func(context.Context) error {
		r.Reap()
		return nil
	})
	return r
}

// Start sets the context monitors poll under and starts the janitor.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	r.janitor.Start(ctx)
}

// For returns the running monitor of sessionID, starting one over src when
// there is none.
func (r *Registry) For(sessionID string, src Source) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.monitors[sessionID]; ok {
		return m
	}
	m := NewMonitor(src, r.interval)
	m.now = r.now
	m.lastSeen = r.now()
	r.monitors[sessionID] = m
	m.Start(log.NewContext(r.ctx, log.FromContext(r.ctx).With(log.FieldSessionID, shortID(sessionID))))
	return m
}

// Lookup returns the monitor of sessionID if one is running.
func (r *Registry) Lookup(sessionID string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[sessionID]
	return m, ok
}

// Stop stops and forgets the monitor of sessionID.
func (r *Registry) Stop(sessionID string) {
	r.mu.Lock()
	m, ok := r.monitors[sessionID]
	delete(r.monitors, sessionID)
	r.mu.Unlock()
	if ok {
		m.Stop()
	}
}

// Reap stops every monitor idle for longer than the idle timeout and
// returns how many were stopped.
func (r *Registry) Reap() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	ctx := r.ctx
	var idle []*Monitor
	for id, m := range r.monitors {
		if m.IdleSince().Before(cutoff) {
			idle = append(idle, m)
			delete(r.monitors, id)
		}
	}
	r.mu.Unlock()

	for _, m := range idle {
		m.Stop()
	}
	if len(idle) > 0 {
		log.FromContext(ctx).WithComponent(log.ComponentAlerts).DebugContext(ctx, "Idle alert monitors stopped", log.FieldCount, len(idle))
	}
	return len(idle)
}

// Len returns the number of running monitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// Shutdown stops the janitor and every monitor.
func (r *Registry) Shutdown() {
	r.janitor.Stop()

	r.mu.Lock()
	all := make([]*Monitor, 0, len(r.monitors))
	for id, m := range r.monitors {
		all = append(all, m)
		delete(r.monitors, id)
	}
	r.mu.Unlock()

	for _, m := range all {
		m.Stop()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
