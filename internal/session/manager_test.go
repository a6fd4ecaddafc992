package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nelfy/internal/core"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "ana@example.com"}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func newTestManager(store Store, now time.Time) *Manager {
	m := NewManager(store, Options{TTL: 8 * time.Hour, CookieName: "sid"})
	m.now = func() time.Time { return now }
	return m
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := TokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = TokenExpiry(signedToken(t, time.Time{}))
	assert.False(t, ok, "token without exp")
	_, ok = TokenExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestManager_CreateBoundsExpiryByToken(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	m := newTestManager(NewMemoryStore(), now)

	short, err := m.Create(context.Background(), signedToken(t, now.Add(time.Hour)), core.User{ID: 1, Role: "user"})
	require.NoError(t, err)
	assert.True(t, short.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.Equal(t, core.RoleUser, short.User.Role)

	long, err := m.Create(context.Background(), signedToken(t, now.Add(72*time.Hour)), core.User{ID: 1})
	require.NoError(t, err)
	assert.True(t, long.ExpiresAt.Equal(now.Add(8*time.Hour)))

	opaque, err := m.Create(context.Background(), "opaque-token", core.User{ID: 1})
	require.NoError(t, err)
	assert.True(t, opaque.ExpiresAt.Equal(now.Add(8*time.Hour)))

	_, err = m.Create(context.Background(), signedToken(t, now.Add(-time.Minute)), core.User{ID: 1})
	assert.ErrorIs(t, err, ErrExpired)
}

func TestManager_LookupHydratesFromStore(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	s := Session{ID: "0b6f6f0e-9a2c-4a57-8d0f-3a2b1c0d9e8f", Token: "tok", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(context.Background(), s))

	m := newTestManager(store, now)
	got, err := m.Lookup(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, 1, m.Cache().Size())

	_, err = m.Lookup(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ExpiredLookupDestroys(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	m := newTestManager(store, now)

	s, err := m.Create(context.Background(), "tok", core.User{ID: 2})
	require.NoError(t, err)

	var destroyed []string
	m.OnDestroy(func(id string) { destroyed = append(destroyed, id) })

	m.now = func() time.Time { return now.Add(9 * time.Hour) }
	_, err = m.Lookup(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, []string{s.ID}, destroyed)

	_, err = store.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Sweep(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Session{ID: "a", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Save(ctx, Session{ID: "b", ExpiresAt: now.Add(time.Hour)}))

	n, err := newTestManager(store, now).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRequireAndLoad(t *testing.T) {
	now := time.Now()
	m := newTestManager(NewMemoryStore(), now)
	s, err := m.Create(context.Background(), "tok", core.User{ID: 5, Name: "Ana"})
	require.NoError(t, err)

	protected := m.Require(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := FromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(got.User.Name))
	}))

	// With cookie.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	setRec := httptest.NewRecorder()
	m.SetCookie(setRec, s)
	for _, c := range setRec.Result().Cookies() {
		req.AddCookie(c)
	}
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana", rec.Body.String())

	// Without cookie.
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	// Load passes anonymous requests through.
	var sawSession bool
	m.Load(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawSession = FromContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, sawSession)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}
