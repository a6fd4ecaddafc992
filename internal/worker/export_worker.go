// Package worker runs the AMQP consumers: report exports in the worker
// process and installment cache invalidation in every web replica.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nelfy/internal/amqp"
	"nelfy/internal/log"
	"nelfy/internal/poll"
	"nelfy/internal/services"
)

// DefaultStaleAfter is how long a job may stay pending before the worker
// gives up on it.
const DefaultStaleAfter = 30 * time.Minute

const staleMessage = "Exportação interrompida. Tente novamente."

// ExportConsumer delivers export requests.
type ExportConsumer interface {
	ConsumeExportRequests(ctx context.Context, fn func(context.Context, *amqp.ExportRequestedMessage) error) error
}

// StaleJobs fails jobs left pending for too long.
type StaleJobs interface {
	FailStale(ctx context.Context, olderThan time.Duration, message string) (int, error)
}

// ExportWorker writes queued report exports to the spreadsheet.
type ExportWorker struct {
	processor  *services.ExportProcessor
	jobs       StaleJobs
	staleAfter time.Duration
}

func NewExportWorker(processor *services.ExportProcessor, jobs StaleJobs, staleAfter time.Duration) *ExportWorker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &ExportWorker{processor: processor, jobs: jobs, staleAfter: staleAfter}
}

// HandleExportMessage processes a single export request from AMQP.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ExportRequestedMessage) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	logger.InfoContext(ctx, "Processing export request",
		"job_id", msg.JobID,
		log.FieldUserID, msg.UserID,
		log.FieldMonth, msg.Month.String())

	if err := w.processor.Process(ctx, msg); err != nil {
		return fmt.Errorf("process export: %w", err)
	}
	return nil
}

// StartupCheck fails jobs whose request was lost while no worker was running,
// so users are not left waiting on them.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	n, err := w.jobs.FailStale(ctx, w.staleAfter, staleMessage)
	if err != nil {
		return fmt.Errorf("startup check: %w", err)
	}
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	if n == 0 {
		logger.InfoContext(ctx, "No stale export jobs found on startup")
		return nil
	}
	logger.WarnContext(ctx, "Failed stale export jobs", log.FieldCount, n)
	return nil
}

// Run performs the startup check, sweeps stale jobs periodically and
// consumes export requests until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, consumer ExportConsumer) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	if err := w.StartupCheck(ctx); err != nil {
		logger.WarnContext(ctx, "Startup check failed", log.FieldError, err)
	}

	sweeper := poll.New("export-sweeper", w.staleAfter, func(ctx context.Context) error {
		_, err := w.jobs.FailStale(ctx, w.staleAfter, staleMessage)
		return err
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	err := consumer.ConsumeExportRequests(ctx, w.HandleExportMessage)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
