package report

import (
	"fmt"
	"time"

	"compatcollect/internal/compat"
)

// RawReport is a report as received, before validation.
type RawReport struct {
	ID         string
	ReceivedAt time.Time
	Payload    []byte
}

// TestResult is one probe result inside a report.
type TestResult struct {
	Exposure compat.Exposure `json:"exposure"`
	Name     string          `json:"name"`
	Result   compat.Value    `json:"result"`
	Message  string          `json:"message,omitempty"`
}

// Session is an accepted report.
type Session struct {
	ID            string
	ReceivedAt    time.Time
	SchemaVersion string
	UserAgent     string
	Browser       string
	// Version is the catalog release the observed version snapped to.
	Version         string
	ObservedVersion string
	Results         map[compat.FeatureID][]TestResult
}

// Status is the outcome class of an ingest.
type Status string

const (
	StatusAccepted           Status = "accepted"
	StatusMalformed          Status = "malformed"
	StatusIncompatibleSchema Status = "incompatible_schema"
	StatusUnknownBrowser     Status = "unknown_browser"
)

// Outcome describes what happened to one report.
type Outcome struct {
	SessionID string `json:"session_id"`
	Status    Status `json:"status"`
	Browser   string `json:"browser,omitempty"`
	Version   string `json:"version,omitempty"`
	Err       error  `json:"-"`
}

// Accepted reports whether the session was indexed.
func (o Outcome) Accepted() bool { return o.Status == StatusAccepted }

// SchemaVersionError rejects a report written by a newer harness.
type SchemaVersionError struct {
	Session   string
	Got       string
	Supported string
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("report %s: incompatible schema version %s (supported up to %s)", e.Session, e.Got, e.Supported)
}

// MalformedReportError rejects a structurally invalid report.
type MalformedReportError struct {
	Session string
	Reason  string
}

func (e *MalformedReportError) Error() string {
	return fmt.Sprintf("report %s: malformed: %s", e.Session, e.Reason)
}

// UnknownBrowserError rejects a report whose user agent maps to no catalog release.
type UnknownBrowserError struct {
	Session   string
	UserAgent string
	Err       error
}

func (e *UnknownBrowserError) Error() string {
	return fmt.Sprintf("report %s: unknown browser %q: %v", e.Session, e.UserAgent, e.Err)
}

func (e *UnknownBrowserError) Unwrap() error { return e.Err }
