package storage

import (
	"context"
	"time"

	"compatcollect/internal/report"
)

// Store combines report and run-history storage capabilities.
type Store interface {
	ReportStore
	RunStore
	Close() error
}

// ReportStore is the append-only log of received reports.
type ReportStore interface {
	// Append stores a raw report payload. Reports are never updated.
	Append(ctx context.Context, payload []byte, receivedAt time.Time) (StoredReport, error)

	// All returns every report in receive order.
	All(ctx context.Context) ([]StoredReport, error)

	// Since returns the reports received at or after t.
	Since(ctx context.Context, t time.Time) ([]StoredReport, error)

	Count(ctx context.Context) (int, error)
}

// RunStore records one row per matrix build.
type RunStore interface {
	RecordRun(ctx context.Context, run Run) error
	Runs(ctx context.Context) ([]Run, error)
}

// StoredReport is a report row.
type StoredReport struct {
	ID            string
	ReceivedAt    time.Time
	UserAgent     string
	SchemaVersion string
	Payload       []byte
}

// Raw converts the row into collector input.
func (r StoredReport) Raw() report.RawReport {
	return report.RawReport{ID: r.ID, ReceivedAt: r.ReceivedAt, Payload: r.Payload}
}

// Run summarises one build.
type Run struct {
	ID          string
	StartedAt   time.Time
	Sessions    int
	Rejected    int
	Features    int
	Orphans     int
	Diagnostics int
}
