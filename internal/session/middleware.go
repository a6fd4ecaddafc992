package session

import (
	"context"
	"net/http"

	"nelfy/internal/log"
)

type contextKey struct{}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by Require or Load.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Load attaches the session to the request when there is one and passes
// anonymous requests through unchanged.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.FromRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserLogger(NewContext(r.Context(), s), s)))
	})
}

// Require rejects requests without a valid session by calling
// unauthenticated, which typically redirects to the login page.
func (m *Manager) Require(unauthenticated http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.FromRequest(r)
			if err != nil {
				m.ClearCookie(w)
				unauthenticated(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserLogger(NewContext(r.Context(), s), s)))
		})
	}
}

func withUserLogger(ctx context.Context, s Session) context.Context {
	logger := log.FromContext(ctx).With(log.FieldUserID, s.User.ID)
	return log.NewContext(ctx, logger)
}
