package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"

	"nelfy/internal/api"
	"nelfy/internal/log"
	"nelfy/internal/session"
)

const reloadMessage = "Algo deu errado. Recarregue a página para continuar."

// recoverer turns a panic in a handler into the fallback page, which
// offers a full reload.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.metrics.panics.Add(1)
			ctx := r.Context()
			log.FromContext(ctx).WithComponent(log.ComponentHTTP).ErrorContext(ctx, "Panic while serving request",
				log.FieldPath, r.URL.Path,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))

			if isHTMX(r) {
				b := NewHTMXResponse().Retarget("#main").Reswap("innerHTML")
				s.writeFragment(w, r, b, "error_panel", PageData{Error: reloadMessage})
				return
			}
			s.page(w, r, http.StatusInternalServerError, "error", PageData{Title: "Erro", Error: reloadMessage})
		}()
		next.ServeHTTP(w, r)
	})
}

// unauthenticated sends anonymous visitors of private pages to the login
// page, remembering where they were going.
func (s *Server) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().Status(http.StatusUnauthorized).Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	msg := "Muitas requisições. Tente novamente em instantes."
	if isHTMX(r) {
		NewHTMXResponse().Status(http.StatusTooManyRequests).Reswap("none").TriggerErrorNotification(msg).Write(w)
		return
	}
	s.page(w, r, http.StatusTooManyRequests, "error", PageData{Title: "Aguarde", Error: msg})
}

// backendError reports a failed backend call. A rejected token ends the
// session; anything else becomes a notice, inline for htmx requests and as
// the error page otherwise.
func (s *Server) backendError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, api.ErrUnauthorized) {
		s.expireSession(w, r)
		return
	}

	s.metrics.backendErrors.Add(1)
	log.FromContext(ctx).WithComponent(log.ComponentAPI).WarnContext(ctx, "Backend request failed",
		log.FieldPath, r.URL.Path,
		log.FieldError, err)

	notice := api.NoticeFor(err)
	if isHTMX(r) {
		NewHTMXResponse().Reswap("none").TriggerErrorNotification(notice).Write(w)
		return
	}
	s.page(w, r, statusFor(err), "error", PageData{Title: "Erro", Error: notice})
}

// expireSession destroys the session whose token the backend rejected and
// sends the user back to the login page.
func (s *Server) expireSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sess, ok := session.FromContext(ctx); ok {
		if err := s.deps.Sessions.Destroy(ctx, sess.ID); err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentSession).ErrorContext(ctx, "Failed to destroy expired session", log.FieldError, err)
		}
		log.FromContext(ctx).WithComponent(log.ComponentSession).InfoContext(ctx, "Backend rejected token, session ended",
			log.FieldOperation, log.OpLogout)
	}
	s.deps.Sessions.ClearCookie(w)

	if isHTMX(r) {
		NewHTMXResponse().Status(http.StatusUnauthorized).Redirect("/login?expired=1").Write(w)
		return
	}
	http.Redirect(w, r, "/login?expired=1", http.StatusSeeOther)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusNotFound, "error", PageData{Title: "Página não encontrada", Error: "A página que você procura não existe."})
}
