package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nelfy/internal/core"
)

// Exports tracks report export jobs.
type Exports struct {
	db  *sql.DB
	now func() time.Time
}

// Exports returns the export job repository of d.
func (d *DB) Exports() *Exports {
	return &Exports{db: d.db, now: time.Now}
}

// Create records a new pending job.
func (r *Exports) Create(ctx context.Context, job core.ExportJob) (core.ExportJob, error) {
	now := r.now()
	job.Status = core.ExportPending
	job.CreatedAt, job.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO export_jobs (id, user_id, month, status, sheet_range, error, created_at, updated_at)
VALUES (?, ?, ?, ?, '', '', ?, ?)`,
		job.ID, job.UserID, job.Month.String(), string(job.Status), now.Unix(), now.Unix())
	if err != nil {
		return core.ExportJob{}, fmt.Errorf("create export job: %w", err)
	}
	return job, nil
}

// Complete marks a job done with the range it wrote.
func (r *Exports) Complete(ctx context.Context, id, sheetRange string) error {
	return r.finish(ctx, id, core.ExportDone, sheetRange, "")
}

// Fail marks a job failed with a message for the user.
func (r *Exports) Fail(ctx context.Context, id, message string) error {
	return r.finish(ctx, id, core.ExportFailed, "", message)
}

func (r *Exports) finish(ctx context.Context, id string, status core.ExportStatus, sheetRange, message string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE export_jobs SET status = ?, sheet_range = ?, error = ?, updated_at = ?
WHERE id = ?`, string(status), sheetRange, message, r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update export job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("export job %s: %w", id, ErrNotFound)
	}
	return nil
}

// FailStale fails every job still pending after olderThan and returns how
// many were updated. Workers call it on startup for requests lost while no
// consumer was running.
func (r *Exports) FailStale(ctx context.Context, olderThan time.Duration, message string) (int, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
UPDATE export_jobs SET status = ?, error = ?, updated_at = ?
WHERE status = ? AND created_at < ?`,
		string(core.ExportFailed), message, now.Unix(), string(core.ExportPending), now.Add(-olderThan).Unix())
	if err != nil {
		return 0, fmt.Errorf("fail stale export jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Get returns one job.
func (r *Exports) Get(ctx context.Context, id string) (core.ExportJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, month, status, sheet_range, error, created_at, updated_at
FROM export_jobs WHERE id = ?`, id)
	job, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExportJob{}, fmt.Errorf("export job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// Recent lists the latest jobs of a user, newest first.
func (r *Exports) Recent(ctx context.Context, userID int64, limit int) ([]core.ExportJob, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, month, status, sheet_range, error, created_at, updated_at
FROM export_jobs WHERE user_id = ?
ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	var out []core.ExportJob
	for rows.Next() {
		job, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(s scanner) (core.ExportJob, error) {
	var (
		job              core.ExportJob
		month, status    string
		created, updated int64
	)
	if err := s.Scan(&job.ID, &job.UserID, &month, &status, &job.SheetRange, &job.Error, &created, &updated); err != nil {
		return core.ExportJob{}, err
	}
	m, err := core.ParseDate(month)
	if err != nil {
		return core.ExportJob{}, fmt.Errorf("export job %s: %w", job.ID, err)
	}
	job.Month = m
	job.Status = core.ExportStatus(status)
	job.CreatedAt = time.Unix(created, 0)
	job.UpdatedAt = time.Unix(updated, 0)
	return job, nil
}
