package http

import (
	"errors"
	"net/http"

	"nelfy/internal/core"
	"nelfy/internal/log"
	"nelfy/internal/services"
)

// ReportsData is the reports page model.
type ReportsData struct {
	Report  services.Report
	Exports ExportsData
}

// ExportsData is the export panel model.
type ExportsData struct {
	Enabled bool
	Month   core.Date
	Jobs    []core.ExportJob
}

// Pending reports whether any listed export is still running, which keeps
// the panel polling.
func (d ExportsData) Pending() bool {
	for _, j := range d.Jobs {
		if !j.Finished() {
			return true
		}
	}
	return false
}

func (s *Server) exports(r *http.Request, month core.Date) ExportsData {
	data := ExportsData{Enabled: s.deps.Reports != nil, Month: month}
	if s.deps.Reports == nil {
		return data
	}
	ctx := r.Context()
	jobs, err := s.deps.Reports.RecentExports(ctx, currentSession(r).User.ID)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentStorage).WarnContext(ctx, "Failed to list exports", log.FieldError, err)
	}
	data.Jobs = jobs
	return data
}

// handleReports renders the category breakdown of a month.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	month := ParseMonth(r.URL.Query(), s.now())

	report, err := services.LoadReport(ctx, s.backendFor(currentSession(r)), month)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "reports", PageData{
		Title:   "Relatórios",
		Nav:     "reports",
		Content: ReportsData{Report: report, Exports: s.exports(r, report.Month)},
	})
}

// handleExportList re-renders the export panel while exports are pending.
func (s *Server) handleExportList(w http.ResponseWriter, r *http.Request) {
	month := ParseMonth(r.URL.Query(), s.now())
	s.writeFragment(w, r, NewHTMXResponse(), "export_list", s.exports(r, month))
}

// handleExport queues the export of a month's report to the spreadsheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := currentSession(r)

	if err := r.ParseForm(); err != nil {
		BadRequestError("Formato da requisição inválido.").Write(w)
		return
	}
	month := ParseMonth(r.PostForm, s.now())
	redirect := "/reports?month=" + month.Format("2006-01")

	if s.deps.Reports == nil {
		s.exportNotice(w, r, redirect, NotificationWarning, "A exportação para planilha não está configurada.", month)
		return
	}

	job, err := s.deps.Reports.RequestExport(ctx, s.backendFor(sess), sess.User, month)
	switch {
	case errors.Is(err, services.ErrExportUnavailable):
		s.exportNotice(w, r, redirect, NotificationWarning, "A exportação para planilha não está disponível no momento.", month)
		return
	case err != nil && job.ID != "":
		log.FromContext(ctx).WithComponent(log.ComponentSheets).ErrorContext(ctx, "Export failed",
			log.FieldOperation, log.OpExport,
			"job_id", job.ID,
			log.FieldError, err)
		s.exportNotice(w, r, redirect, NotificationError, "Não foi possível exportar o relatório.", month)
		return
	case err != nil:
		s.backendError(w, r, err)
		return
	}
	s.metrics.exportsRequested.Add(1)

	msg := "Exportação solicitada. Acompanhe o andamento abaixo."
	if job.Status == core.ExportDone {
		msg = "Relatório exportado para a planilha."
	}
	s.exportNotice(w, r, redirect, NotificationSuccess, msg, month)
}

func (s *Server) exportNotice(w http.ResponseWriter, r *http.Request, redirect string, kind NotificationType, msg string, month core.Date) {
	if !isHTMX(r) {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	b := NewHTMXResponse().
		Trigger(EventExportQueued, nil).
		TriggerNotification(kind, msg, 4000)
	s.writeFragment(w, r, b, "export_list", s.exports(r, month))
}
