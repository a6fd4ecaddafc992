package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "nelfy/internal/sheets"
)

var _ ports.ReportExporter = (*Store)(nil)

// Store keeps exported reports in memory. It stands in for Google Sheets
// when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	rows    int
	reports []ports.Report
	fail    error
}

func New() *Store {
	return &Store{}
}

// ExportReport stores the report and returns a synthetic range.
func (s *Store) ExportReport(_ context.Context, r ports.Report) (string, error) {
	if r.Month.IsZero() {
		return "", errors.New("report month is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	n := len(ports.Rows(r))
	first := s.rows + 1
	s.rows += n
	s.reports = append(s.reports, r)
	return fmt.Sprintf("mem!A%d:F%d", first, s.rows), nil
}

// Reports returns a copy of every exported report, oldest first.
func (s *Store) Reports() []ports.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Report(nil), s.reports...)
}

// FailWith makes every following export return err; nil restores success.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}
