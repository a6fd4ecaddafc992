package http

import (
	"context"
	"net/http"

	"nelfy/internal/alerts"
	"nelfy/internal/core"
	"nelfy/internal/log"
	"nelfy/internal/session"
)

// DashboardData is the dashboard page model.
type DashboardData struct {
	Month  core.Date
	Totals core.MonthTotals
	Recent []core.Transaction
	Alerts alerts.Snapshot
}

// NotificationsData is the notifications dropdown model.
type NotificationsData struct {
	Items  []core.Notification
	Unread int64
}

// monitor returns the session's alert monitor, polling synchronously when
// it has not completed a poll yet so a fresh page never shows empty alerts.
func (s *Server) monitor(ctx context.Context, sess session.Session) *alerts.Monitor {
	m := s.deps.Alerts.For(sess.ID, s.backendFor(sess))
	if !m.Snapshot().Loaded() {
		_ = m.Refresh(ctx)
	}
	return m
}

// refreshAlerts re-polls the session's monitor after a change, so the
// alerts:refresh fetch that follows sees the new state.
func (s *Server) refreshAlerts(ctx context.Context, sess session.Session) {
	if m, ok := s.deps.Alerts.Lookup(sess.ID); ok {
		_ = m.Refresh(ctx)
	}
}

// handleDashboard renders the month totals, the latest transactions and
// the alert widgets.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	month := ParseMonth(r.URL.Query(), s.now())

	txs, err := s.backendFor(sess).Monthly(ctx, month)
	if err != nil {
		s.backendError(w, r, err)
		return
	}

	data := DashboardData{
		Month:  month,
		Totals: core.SumByType(txs),
		Alerts: s.monitor(ctx, sess).Snapshot(),
	}
	for _, tx := range txs {
		if tx.IsGroupParent() {
			continue
		}
		data.Recent = append(data.Recent, tx)
		if len(data.Recent) == 8 {
			break
		}
	}

	s.page(w, r, http.StatusOK, "dashboard", PageData{Title: "Painel", Nav: "dashboard", Content: data})
}

// handleAlerts re-renders the alert widgets from the polled snapshot.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := s.monitor(ctx, currentSession(r)).Snapshot()
	s.writeFragment(w, r, NewHTMXResponse(), "alerts", snap)
}

// handleNotificationCount renders the unread badge from the snapshot.
func (s *Server) handleNotificationCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := s.monitor(ctx, currentSession(r)).Snapshot()
	s.writeFragment(w, r, NewHTMXResponse(), "notification_badge", snap.Unread)
}

// handleNotifications renders the unread notifications dropdown.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)

	items, err := s.backendFor(sess).UnreadNotifications(ctx)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.syncUnread(sess, int64(len(items)))
	s.writeFragment(w, r, NewHTMXResponse(), "notifications", NotificationsData{Items: items, Unread: int64(len(items))})
}

func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError("Notificação inválida.").Write(w)
		return
	}

	backend := s.backendFor(sess)
	if err := backend.MarkNotificationRead(ctx, id); err != nil {
		s.backendError(w, r, err)
		return
	}
	items, err := backend.UnreadNotifications(ctx)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.syncUnread(sess, int64(len(items)))

	log.FromContext(ctx).WithComponent(log.ComponentHTTP).DebugContext(ctx, "Notification marked as read", "notification_id", id)
	b := NewHTMXResponse().Trigger(EventNotificationsRead, map[string]any{"unread": len(items)})
	s.writeFragment(w, r, b, "notifications", NotificationsData{Items: items, Unread: int64(len(items))})
}

func (s *Server) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)

	if err := s.backendFor(sess).MarkAllNotificationsRead(ctx); err != nil {
		s.backendError(w, r, err)
		return
	}
	s.syncUnread(sess, 0)

	b := NewHTMXResponse().
		Trigger(EventNotificationsRead, map[string]any{"unread": 0}).
		TriggerSuccessNotification("Todas as notificações foram lidas.")
	s.writeFragment(w, r, b, "notifications", NotificationsData{})
}

// syncUnread pushes a locally known unread count into the monitor, ahead
// of its next poll.
func (s *Server) syncUnread(sess session.Session, n int64) {
	if m, ok := s.deps.Alerts.Lookup(sess.ID); ok {
		m.SetUnread(n)
	}
}
