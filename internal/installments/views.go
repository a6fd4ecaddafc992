package installments

import (
	"time"

	"nelfy/internal/cache"
)

// Views keeps one View per signed-in session. Idle views expire and are
// rebuilt empty on the next visit.
type Views struct {
	views *cache.LRUCache[*View]
}

// NewViews creates a registry holding at most maxSessions views, each
// dropped after idle without use.
func NewViews(maxSessions int, idle time.Duration) *Views {
	return &Views{views: cache.NewLRUCache[*View](maxSessions, idle, cache.WithSliding[*View]())}
}

// For returns the view of sessionID, creating it on first use.
func (v *Views) For(sessionID string) *View {
	return v.views.GetOrCreate(sessionID, NewView)
}

// Forget drops the view of sessionID, e.g. on logout.
func (v *Views) Forget(sessionID string) {
	v.views.Delete(sessionID)
}

// EvictGroup drops the cached children of parentID from every view and
// returns how many views held them.
func (v *Views) EvictGroup(parentID int64) int {
	n := 0
	v.views.Range(func(_ string, view *View) bool {
		if view.Evict(parentID) {
			n++
		}
		return true
	})
	return n
}

// Cache exposes the backing cache for the expiry sweep.
func (v *Views) Cache() *cache.LRUCache[*View] {
	return v.views
}
