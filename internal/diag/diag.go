package diag

import (
	"errors"
	"fmt"
	"sort"

	"compatcollect/internal/crawler"
	"compatcollect/internal/extractor"
	"compatcollect/internal/graph"
	"compatcollect/internal/idl"
	"compatcollect/internal/matrix"
	"compatcollect/internal/overrides"
	"compatcollect/internal/reducer"
	"compatcollect/internal/report"
)

type Stage string

const (
	StageLoad    Stage = "load"
	StageMerge   Stage = "merge"
	StageFeature Stage = "features"
	StageCollect Stage = "collect"
	StageReduce  Stage = "reduce"
	StageMatrix  Stage = "matrix"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one located problem. Subject names the thing a caller has to
// look at: a file, a definition, a session id or a feature id.
type Diagnostic struct {
	Stage    Stage    `json:"stage"`
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s %s %s: %s", d.Severity, d.Stage, d.Kind, d.Subject, d.Message)
}

// From classifies a pipeline error.
func From(stage Stage, err error) Diagnostic {
	d := Diagnostic{Stage: stage, Kind: "error", Severity: SeverityError, Message: err.Error()}

	var (
		parseErr   *idl.ParseError
		sourceErr  *crawler.SourceError
		conflict   *graph.MergeConflict
		unresolved *graph.UnresolvedReference
		snippetErr *extractor.SnippetError
		schemaErr  *report.SchemaVersionError
		malformed  *report.MalformedReportError
		unknownUA  *report.UnknownBrowserError
		entryErr   *overrides.EntryError
		cycle      *reducer.MirrorCycleError
		regression *reducer.RegressionWarning
		orphan     *matrix.OrphanFeatureWarning
	)
	switch {
	case errors.As(err, &parseErr):
		d.Kind, d.Subject = "parse_error", parseErr.File
	case errors.As(err, &sourceErr):
		d.Kind, d.Subject = "source_error", sourceErr.Source
	case errors.As(err, &conflict):
		d.Kind, d.Subject = string(conflict.Reason), conflict.Definition
	case errors.As(err, &unresolved):
		d.Kind, d.Subject = string(unresolved.Reason), unresolved.Definition
		if unresolved.Reason == graph.ReasonUnknownParent || unresolved.Reason == graph.ReasonInheritanceCycle {
			d.Severity = SeverityWarning
		}
	case errors.As(err, &snippetErr):
		d.Kind, d.Subject = "invalid_snippet", string(snippetErr.Feature)
	case errors.As(err, &schemaErr):
		d.Kind, d.Subject = string(report.StatusIncompatibleSchema), schemaErr.Session
	case errors.As(err, &malformed):
		d.Kind, d.Subject = string(report.StatusMalformed), malformed.Session
	case errors.As(err, &unknownUA):
		d.Kind, d.Subject = string(report.StatusUnknownBrowser), unknownUA.Session
	case errors.As(err, &entryErr):
		d.Kind, d.Subject = "invalid_override", fmt.Sprintf("override #%d", entryErr.Index)
	case errors.As(err, &cycle):
		d.Kind, d.Subject = "mirror_cycle", string(cycle.Feature)
	case errors.As(err, &regression):
		d.Kind, d.Subject = "regression_ignored", string(regression.Feature)
		d.Severity = SeverityWarning
	case errors.As(err, &orphan):
		d.Kind, d.Subject = "orphan_feature", string(orphan.Feature)
		d.Severity = SeverityWarning
	}
	return d
}

// List accumulates diagnostics across stages in the order they were raised.
type List []Diagnostic

// Add classifies and appends errs.
func (l *List) Add(stage Stage, errs ...error) {
	for _, err := range errs {
		if err != nil {
			*l = append(*l, From(stage, err))
		}
	}
}

// Count returns the number of diagnostics with the given severity.
func (l List) Count(s Severity) int {
	n := 0
	for _, d := range l {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// ByKind counts diagnostics per kind.
func (l List) ByKind() map[string]int {
	out := make(map[string]int)
	for _, d := range l {
		out[d.Kind]++
	}
	return out
}

// Kinds returns the distinct kinds, sorted.
func (l List) Kinds() []string {
	counts := l.ByKind()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
