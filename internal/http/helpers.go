package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"nelfy/internal/api"
	"nelfy/internal/log"
	"nelfy/internal/middleware/trace"
	"nelfy/internal/session"
)

// page renders a full page. The signed-in user, when there is one, is
// filled in from the request.
func (s *Server) page(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	ctx := r.Context()
	if sess, ok := session.FromContext(ctx); ok && data.User == nil {
		user := sess.User
		data.User = &user
	}
	data.RequestID = trace.GetRequestID(ctx)
	data.AlertPoll = int(s.deps.AlertPollInterval.Seconds())

	body, err := s.renderer.Page(name, data)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentTemplate).ErrorContext(ctx, "Page template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		http.Error(w, "Erro ao exibir a página.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// fragment renders a partial, logging failures.
func (s *Server) fragment(ctx context.Context, name string, data any) ([]byte, bool) {
	body, err := s.renderer.Fragment(name, data)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentTemplate).ErrorContext(ctx, "Fragment template execution failed",
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
		return nil, false
	}
	return body, true
}

// writeFragment renders name into b and sends it. Rendering failures turn
// into an error notice that leaves the page untouched.
func (s *Server) writeFragment(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, ok := s.fragment(r.Context(), name, data)
	if !ok {
		NewHTMXResponse().Reswap("none").
			TriggerErrorNotification("Erro ao atualizar a página. Recarregue para continuar.").
			Write(w)
		return
	}
	b.BodyHTML(body).Write(w)
}

// currentSession returns the session attached by the Require middleware.
func currentSession(r *http.Request) session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

// backendFor binds the backend client to the session's token.
func (s *Server) backendFor(sess session.Session) UserAPI {
	return s.deps.Backend(sess.Token)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}

// statusFor maps a backend failure onto the status of the page showing it.
func statusFor(err error) int {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.IsValidation():
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
