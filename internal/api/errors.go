package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

var (
	// ErrNetwork means the backend could not be reached at all.
	ErrNetwork = errors.New("backend unreachable")
	// ErrTimeout means the backend did not answer within the client timeout.
	ErrTimeout = errors.New("backend timeout")
	// ErrUnauthorized means the token is missing, expired or rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx answer from the backend. Message carries the
// backend's own "message" field when it sent one.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %d %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %d %s", e.Path, e.Status, http.StatusText(e.Status))
}

// Unwrap maps the status onto the package sentinels so callers can use
// errors.Is(err, ErrUnauthorized) without inspecting the status.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// IsValidation reports whether the backend rejected the request content.
func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusUnauthorized && e.Status != http.StatusNotFound
}

// classify turns a transport failure into ErrTimeout or ErrNetwork.
func classify(ctx context.Context, path string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("backend %s: %w", path, ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("backend %s: %w", path, ErrTimeout)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("backend %s: %w", path, ErrTimeout)
	}
	return fmt.Errorf("backend %s: %w: %v", path, ErrNetwork, err)
}

// NoticeFor converts err into the message shown to the user. The validation
// message of the backend is shown as is.
func NoticeFor(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrTimeout):
		return "Tempo de espera esgotado. Verifique sua conexão."
	case errors.Is(err, ErrNetwork):
		return "Erro de conexão. Verifique se o servidor está rodando."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email ou senha inválidos."
	case errors.Is(err, ErrUnauthorized):
		return "Sua sessão expirou. Faça login novamente."
	case errors.Is(err, ErrNotFound):
		return "Registro não encontrado."
	case errors.As(err, &apiErr) && apiErr.IsValidation() && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, context.Canceled):
		return "Operação cancelada."
	}
	return "Erro ao processar a solicitação. Tente novamente."
}
