package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"nelfy/internal/cache"
	"nelfy/internal/core"
	"nelfy/internal/log"
)

const (
	DefaultCookieName = "nelfy_session"
	DefaultTTL        = 24 * time.Hour
)

// Options configures a Manager.
type Options struct {
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
	// CacheSize bounds the in-memory lookup cache in front of the store.
	CacheSize int
}

// Manager creates, resolves and destroys sessions. Lookups are served from
// an in-memory cache and hydrated from the store on a miss.
type Manager struct {
	store  Store
	opts   Options
	cached *cache.LRUCache[Session]
	now    func() time.Time

	mu        sync.RWMutex
	onDestroy []func(id string)
}

// NewManager creates a manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	return &Manager{
		store:  store,
		opts:   opts,
		cached: cache.NewLRUCache[Session](opts.CacheSize, 5*time.Minute),
		now:    time.Now,
	}
}

// Cache exposes the lookup cache for the periodic sweep.
func (m *Manager) Cache() *cache.LRUCache[Session] {
	return m.cached
}

// OnDestroy registers fn to run with the id of every destroyed session.
func (m *Manager) OnDestroy(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDestroy = append(m.onDestroy, fn)
}

// Create starts a session for token. The session never outlives the
// token's own exp claim.
func (m *Manager) Create(ctx context.Context, token string, user core.User) (Session, error) {
	now := m.now()
	expires := now.Add(m.opts.TTL)
	if exp, ok := TokenExpiry(token); ok && exp.Before(expires) {
		expires = exp
	}
	if !now.Before(expires) {
		return Session{}, ErrExpired
	}

	user.Role = user.Role.Normalize()
	s := Session{
		ID:        uuid.NewString(),
		Token:     token,
		User:      user,
		CreatedAt: now,
		ExpiresAt: expires,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	m.cached.Set(s.ID, s)

	log.FromContext(ctx).WithComponent(log.ComponentSession).InfoContext(ctx, "Session created",
		log.FieldUserID, user.ID,
		log.FieldOperation, log.OpLogin)
	return s, nil
}

// Lookup resolves id. Expired sessions are destroyed and reported as
// ErrExpired.
func (m *Manager) Lookup(ctx context.Context, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, ErrNotFound
	}

	s, ok := m.cached.Get(id)
	if !ok {
		var err error
		s, err = m.store.Get(ctx, id)
		if err != nil {
			return Session{}, err
		}
		m.cached.Set(id, s)
	}

	if s.Expired(m.now()) {
		_ = m.Destroy(ctx, id)
		return Session{}, ErrExpired
	}
	return s, nil
}

// Destroy removes the session and notifies the OnDestroy hooks.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.cached.Delete(id)
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	m.mu.RLock()
	hooks := m.onDestroy
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// Sweep deletes every expired session from the store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if n > 0 {
		log.FromContext(ctx).WithComponent(log.ComponentSession).DebugContext(ctx, "Expired sessions removed", log.FieldCount, n)
	}
	return n, nil
}

// SetCookie writes the session cookie for s.
func (m *Manager) SetCookie(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie in the browser.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest resolves the session named by the request cookie.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return m.Lookup(r.Context(), c.Value)
}
