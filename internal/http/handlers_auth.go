package http

import (
	"errors"
	"net/http"
	"net/url"

	"nelfy/internal/api"
	"nelfy/internal/log"
	"nelfy/internal/session"
)

// handleLanding renders the public marketing page.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusOK, "landing", PageData{Title: "Nelfy - finanças sem planilha"})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	data := PageData{Title: "Entrar", Form: url.Values{"next": {r.URL.Query().Get("next")}}}
	if r.URL.Query().Get("expired") != "" {
		data.Notice = "Sua sessão expirou. Faça login novamente."
	}
	s.page(w, r, http.StatusOK, "login", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentSession).With(log.FieldOperation, log.OpLogin)

	if err := r.ParseForm(); err != nil {
		s.page(w, r, http.StatusBadRequest, "login", PageData{Title: "Entrar", Error: "Formato da requisição inválido."})
		return
	}
	data := PageData{Title: "Entrar", Form: r.PostForm}

	req, err := ParseLoginForm(r.PostForm)
	var fe FormErrors
	if errors.As(err, &fe) {
		data.Errors = fe
		s.page(w, r, http.StatusUnprocessableEntity, "login", data)
		return
	}

	resp, err := s.deps.Auth.Login(ctx, req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		logger.WarnContext(ctx, "Login failed", log.FieldError, err)
		data.Error = api.NoticeFor(err)
		s.page(w, r, status, "login", data)
		return
	}

	if !s.startSession(w, r, resp, "login", data) {
		return
	}
	s.metrics.logins.Add(1)
	logger.InfoContext(ctx, "User signed in", log.FieldUserID, resp.User.ID)
	http.Redirect(w, r, safeNext(r.PostForm.Get("next")), http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.page(w, r, http.StatusOK, "register", PageData{
		Title: "Criar conta",
		Form:  url.Values{"referralCode": {r.URL.Query().Get("ref")}},
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentSession).With(log.FieldOperation, log.OpRegister)

	if err := r.ParseForm(); err != nil {
		s.page(w, r, http.StatusBadRequest, "register", PageData{Title: "Criar conta", Error: "Formato da requisição inválido."})
		return
	}
	data := PageData{Title: "Criar conta", Form: r.PostForm}

	req, err := ParseRegisterForm(r.PostForm)
	var fe FormErrors
	if errors.As(err, &fe) {
		data.Errors = fe
		s.page(w, r, http.StatusUnprocessableEntity, "register", data)
		return
	}

	resp, err := s.deps.Auth.Register(ctx, req)
	if err != nil {
		logger.WarnContext(ctx, "Registration failed", log.FieldError, err)
		data.Error = api.NoticeFor(err)
		s.page(w, r, statusFor(err), "register", data)
		return
	}

	if !s.startSession(w, r, resp, "register", data) {
		return
	}
	s.metrics.registrations.Add(1)
	logger.InfoContext(ctx, "User registered", log.FieldUserID, resp.User.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// startSession stores the backend token and sets the cookie. On failure it
// re-renders the form page and returns false.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, resp api.AuthResponse, page string, data PageData) bool {
	ctx := r.Context()
	sess, err := s.deps.Sessions.Create(ctx, resp.Token, resp.User)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentSession).ErrorContext(ctx, "Failed to create session", log.FieldError, err)
		data.Error = "Não foi possível iniciar a sessão. Tente novamente."
		s.page(w, r, http.StatusInternalServerError, page, data)
		return false
	}
	s.deps.Sessions.SetCookie(w, sess)
	return true
}

// handleLogout ends the session. Its alert monitor and transactions view
// are released by the session's destroy hooks.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sess, err := s.deps.Sessions.FromRequest(r); err == nil {
		if err := s.deps.Sessions.Destroy(ctx, sess.ID); err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentSession).ErrorContext(ctx, "Failed to destroy session", log.FieldError, err)
		}
		log.FromContext(ctx).WithComponent(log.ComponentSession).InfoContext(ctx, "User signed out",
			log.FieldOperation, log.OpLogout,
			log.FieldUserID, sess.User.ID)
	}
	s.deps.Sessions.ClearCookie(w)

	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
