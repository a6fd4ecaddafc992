// Package http serves the nelfy web UI: full pages for navigation and htmx
// fragments for the interactive parts.
//
// This file implements the Builder Pattern for constructing htmx responses.
// It provides a fluent API for HX-* headers and consistent response
// formatting.
package http

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
)

// Events the browser listens for.
const (
	EventNotify              = "notify"
	EventTransactionsChanged = "transactions:changed"
	EventTotalsRefresh       = "totals:refresh"
	EventAlertsRefresh       = "alerts:refresh"
	EventNotificationsRead   = "notifications:read"
	EventExportQueued        = "export:queued"
	EventFormReset           = "form:reset"
)

// HTMXResponseBuilder provides a fluent API for building htmx responses.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	if data == nil {
		data = struct{}{}
	}
	b.triggers[name] = data
	return b
}

// TriggerTransactionsChanged asks the list, the totals and the alert
// widgets to reload.
func (b *HTMXResponseBuilder) TriggerTransactionsChanged() *HTMXResponseBuilder {
	return b.Trigger(EventTransactionsChanged, nil).TriggerTotalsRefresh()
}

// TriggerTotalsRefresh reloads the totals and alerts but keeps the list,
// so expanded groups stay as they are.
func (b *HTMXResponseBuilder) TriggerTotalsRefresh() *HTMXResponseBuilder {
	return b.Trigger(EventTotalsRefresh, nil).Trigger(EventAlertsRefresh, nil)
}

// TriggerFormReset clears the submitted form.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(EventFormReset, nil)
}

// NotificationType represents the type of notice to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification adds a transient notice shown by the page script.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(EventNotify, map[string]any{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

// TriggerSuccessNotification is a convenience method for success notices.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// TriggerErrorNotification is a convenience method for error notices.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Redirect makes htmx navigate the whole page to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// Reswap overrides the hx-swap of the triggering element.
func (b *HTMXResponseBuilder) Reswap(swap string) *HTMXResponseBuilder {
	return b.Header("HX-Reswap", swap)
}

// Retarget overrides the hx-target of the triggering element.
func (b *HTMXResponseBuilder) Retarget(selector string) *HTMXResponseBuilder {
	return b.Header("HX-Retarget", selector)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyString sets the response body as a string.
func (b *HTMXResponseBuilder) BodyString(content string) *HTMXResponseBuilder {
	b.body = []byte(content)
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html []byte) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = html
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates an inline error fragment. The message is escaped.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	var buf bytes.Buffer
	buf.WriteString(`<div class="alert alert-error" role="alert">`)
	template.HTMLEscape(&buf, []byte(message))
	buf.WriteString(`</div>`)
	return NewHTMXResponse().Status(statusCode).BodyHTML(buf.Bytes())
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// isHTMX reports whether r was issued by htmx rather than a full navigation.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
