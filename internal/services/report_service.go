package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nelfy/internal/amqp"
	"nelfy/internal/core"
	"nelfy/internal/log"
	"nelfy/internal/sheets"
	"nelfy/internal/storage"
)

// ErrExportUnavailable is returned when neither a broker nor a spreadsheet
// is configured.
var ErrExportUnavailable = errors.New("report export is not configured")

// ReportSource is the slice of the backend the reports page needs.
type ReportSource interface {
	Monthly(ctx context.Context, month core.Date) ([]core.Transaction, error)
	CategoryStats(ctx context.Context, month core.Date) ([]core.CategoryStat, error)
}

// ExportJobs persists export job status.
type ExportJobs interface {
	Create(ctx context.Context, job core.ExportJob) (core.ExportJob, error)
	Complete(ctx context.Context, id, sheetRange string) error
	Fail(ctx context.Context, id, message string) error
	Get(ctx context.Context, id string) (core.ExportJob, error)
	Recent(ctx context.Context, userID int64, limit int) ([]core.ExportJob, error)
}

// ExportPublisher hands export requests to the worker.
type ExportPublisher interface {
	PublishExportRequested(ctx context.Context, msg *amqp.ExportRequestedMessage) error
}

// Report is the monthly report page model.
type Report struct {
	Month        core.Date
	Stats        []core.CategoryStat
	Shares       []int
	Totals       core.MonthTotals
	Transactions []core.Transaction
}

// LoadReport fetches the month's transactions and category stats in
// parallel. Both must succeed.
func LoadReport(ctx context.Context, src ReportSource, month core.Date) (Report, error) {
	month = month.FirstOfMonth()
	r := Report{Month: month}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := src.Monthly(gctx, month)
		if err != nil {
			return fmt.Errorf("monthly transactions: %w", err)
		}
		r.Transactions = txs
		return nil
	})
	g.Go(func() error {
		stats, err := src.CategoryStats(gctx, month)
		if err != nil {
			return fmt.Errorf("category stats: %w", err)
		}
		r.Stats = stats
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	core.SortStatsByAmount(r.Stats)
	r.Shares = core.StatShares(r.Stats)
	r.Totals = core.SumByType(r.Transactions)
	return r, nil
}

// ReportService starts report exports. Requests go to the worker over AMQP;
// without a broker, or when publishing fails, the export runs inline.
type ReportService struct {
	jobs      ExportJobs
	events    ExportPublisher
	processor *ExportProcessor
	newID     func() string
}

// NewReportService creates the service. events and processor may each be
// nil but not both for exports to work.
func NewReportService(jobs ExportJobs, events ExportPublisher, processor *ExportProcessor) *ReportService {
	return &ReportService{
		jobs:      jobs,
		events:    events,
		processor: processor,
		newID:     uuid.NewString,
	}
}

// RequestExport loads the report of month with the user's token and queues
// it for export. The returned job is PENDING when queued, or final when the
// export ran inline.
func (s *ReportService) RequestExport(ctx context.Context, src ReportSource, user core.User, month core.Date) (core.ExportJob, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentSheets).With(
		log.FieldOperation, log.OpExport,
		log.FieldMonth, month.FirstOfMonth().String())

	if s.events == nil && s.processor == nil {
		return core.ExportJob{}, ErrExportUnavailable
	}

	report, err := LoadReport(ctx, src, month)
	if err != nil {
		return core.ExportJob{}, err
	}

	job, err := s.jobs.Create(ctx, core.ExportJob{ID: s.newID(), UserID: user.ID, Month: report.Month})
	if err != nil {
		return core.ExportJob{}, err
	}
	msg := amqp.NewExportRequestedMessage(job, user.Name, report.Stats, report.Transactions)

	if s.events != nil {
		err := s.events.PublishExportRequested(ctx, msg)
		if err == nil {
			logger.InfoContext(ctx, "Export queued", "job_id", job.ID)
			return job, nil
		}
		logger.WarnContext(ctx, "Failed to queue export", log.FieldError, err)
	}

	if s.processor == nil {
		if ferr := s.jobs.Fail(ctx, job.ID, "Exportação indisponível no momento."); ferr != nil {
			logger.ErrorContext(ctx, "Failed to record export failure", log.FieldError, ferr)
		}
		return s.reload(ctx, job), ErrExportUnavailable
	}

	err = s.processor.Process(ctx, msg)
	return s.reload(ctx, job), err
}

// RecentExports lists the user's latest export jobs.
func (s *ReportService) RecentExports(ctx context.Context, userID int64) ([]core.ExportJob, error) {
	return s.jobs.Recent(ctx, userID, 5)
}

func (s *ReportService) reload(ctx context.Context, job core.ExportJob) core.ExportJob {
	if fresh, err := s.jobs.Get(ctx, job.ID); err == nil {
		return fresh
	}
	return job
}

// ExportProcessor writes export requests to the spreadsheet and records the
// outcome. It runs in the worker, or inline in the web server.
type ExportProcessor struct {
	jobs     ExportJobs
	exporter sheets.ReportExporter
	now      func() time.Time
}

func NewExportProcessor(jobs ExportJobs, exporter sheets.ReportExporter) *ExportProcessor {
	return &ExportProcessor{jobs: jobs, exporter: exporter, now: time.Now}
}

// Process exports one request. Requests for unknown or already completed
// jobs are acknowledged without exporting again. A failed export is recorded
// on the job and returned so the broker can redeliver it once.
func (p *ExportProcessor) Process(ctx context.Context, msg *amqp.ExportRequestedMessage) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker).With("job_id", msg.JobID)

	job, err := p.jobs.Get(ctx, msg.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.WarnContext(ctx, "Dropping export for unknown job")
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status == core.ExportDone {
		logger.InfoContext(ctx, "Export already completed, skipping")
		return nil
	}

	start := p.now()
	rng, err := p.exporter.ExportReport(ctx, sheets.Report{
		JobID:        msg.JobID,
		UserName:     msg.UserName,
		Month:        msg.Month,
		Stats:        msg.Stats,
		Transactions: msg.Transactions,
		GeneratedAt:  start,
	})
	if err != nil {
		if ferr := p.jobs.Fail(ctx, msg.JobID, "Não foi possível gravar na planilha."); ferr != nil {
			logger.ErrorContext(ctx, "Failed to record export failure", log.FieldError, ferr)
		}
		return fmt.Errorf("export job %s: %w", msg.JobID, err)
	}
	if err := p.jobs.Complete(ctx, msg.JobID, rng); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Export completed",
		log.FieldSheetRange, rng,
		log.FieldDuration, p.now().Sub(start).Milliseconds())
	return nil
}
