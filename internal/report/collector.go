package report

import (
	"context"
	"fmt"
	"time"

	"compatcollect/internal/browsers"
	"compatcollect/internal/compat"
	"compatcollect/internal/useragent"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector validates reports and indexes the accepted ones.
type Collector struct {
	catalog   *browsers.Catalog
	supported *version.Version
	log       *zap.Logger
	workers   int
	now       func() time.Time
}

// NewCollector creates a collector accepting schema versions up to supported.
func NewCollector(catalog *browsers.Catalog, supported string, log *zap.Logger, workers int) (*Collector, error) {
	v, err := version.NewVersion(supported)
	if err != nil {
		return nil, fmt.Errorf("invalid supported schema version %q: %w", supported, err)
	}
	if workers <= 0 {
		workers = 4
	}
	return &Collector{
		catalog:   catalog,
		supported: v,
		log:       log,
		workers:   workers,
		now:       time.Now,
	}, nil
}

// Ingest validates one report. The session is nil unless the outcome is
// accepted.
func (c *Collector) Ingest(raw RawReport) (*Session, Outcome) {
	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}
	out := Outcome{SessionID: id}
	reject := func(status Status, err error) (*Session, Outcome) {
		out.Status, out.Err = status, err
		return nil, out
	}
	malformed := func(format string, args ...any) (*Session, Outcome) {
		return reject(StatusMalformed, &MalformedReportError{Session: id, Reason: fmt.Sprintf(format, args...)})
	}

	if !gjson.ValidBytes(raw.Payload) {
		return malformed("payload is not valid JSON")
	}
	root := gjson.ParseBytes(raw.Payload)
	if !root.IsObject() {
		return malformed("payload is not an object")
	}
	fields := gjson.GetManyBytes(raw.Payload, "__version", "userAgent", "results")
	schema, agent, results := fields[0], fields[1], fields[2]
	if schema.Type != gjson.String {
		return malformed("__version must be a string")
	}
	if agent.Type != gjson.String {
		return malformed("userAgent must be a string")
	}
	if !results.IsObject() {
		return malformed("results must be an object")
	}

	got, err := version.NewVersion(schema.String())
	if err != nil {
		return malformed("__version %q is not a version", schema.String())
	}
	if got.GreaterThan(c.supported) {
		return reject(StatusIncompatibleSchema, &SchemaVersionError{
			Session:   id,
			Got:       schema.String(),
			Supported: c.supported.Original(),
		})
	}

	s := &Session{
		ID:            id,
		ReceivedAt:    raw.ReceivedAt,
		SchemaVersion: schema.String(),
		UserAgent:     agent.String(),
		Results:       make(map[compat.FeatureID][]TestResult),
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = c.now().UTC()
	}

	var bad string
	results.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			bad = fmt.Sprintf("results[%q] must be an array", key.String())
			return false
		}
		for i, entry := range value.Array() {
			tr, reason := decodeResult(entry)
			if reason != "" {
				bad = fmt.Sprintf("results[%q][%d]: %s", key.String(), i, reason)
				return false
			}
			feature := compat.FeatureID(tr.Name)
			if feature == "" {
				feature = compat.FeatureID(key.String())
				tr.Name = key.String()
			}
			s.Results[feature] = append(s.Results[feature], tr)
		}
		return true
	})
	if bad != "" {
		return malformed("%s", bad)
	}

	b, err := useragent.Parse(s.UserAgent)
	if err != nil {
		return reject(StatusUnknownBrowser, &UnknownBrowserError{Session: id, UserAgent: s.UserAgent, Err: err})
	}
	release, err := c.catalog.Snap(b.ID, b.Version)
	if err != nil {
		return reject(StatusUnknownBrowser, &UnknownBrowserError{Session: id, UserAgent: s.UserAgent, Err: err})
	}
	s.Browser, s.Version, s.ObservedVersion = b.ID, release, b.Version

	out.Status, out.Browser, out.Version = StatusAccepted, b.ID, release
	return s, out
}

func decodeResult(entry gjson.Result) (TestResult, string) {
	if !entry.IsObject() {
		return TestResult{}, "entry must be an object"
	}
	var tr TestResult

	name := entry.Get("name")
	if name.Exists() && name.Type != gjson.String {
		return tr, "name must be a string"
	}
	tr.Name = name.String()

	switch r := entry.Get("result"); r.Type {
	case gjson.True:
		tr.Result = compat.True
	case gjson.False:
		tr.Result = compat.False
	case gjson.Null:
		// An absent result is inconclusive too.
		tr.Result = compat.Null
	default:
		return tr, "result must be true, false or null"
	}

	if exp := entry.Get("exposure"); exp.Exists() {
		e, err := compat.ParseExposure(exp.String())
		if err != nil {
			return tr, err.Error()
		}
		tr.Exposure = e
	} else {
		tr.Exposure = compat.ExposureWindow
	}
	tr.Message = entry.Get("message").String()
	return tr, ""
}

// IngestAll validates reports on parallel workers and then builds the index
// in input order. Outcomes are returned in input order.
func (c *Collector) IngestAll(ctx context.Context, raws []RawReport) (*Index, []Outcome, error) {
	sessions := make([]*Session, len(raws))
	outcomes := make([]Outcome, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sessions[i], outcomes[i] = c.Ingest(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	ix := NewIndex()
	for i, s := range sessions {
		if s == nil {
			c.log.Warn("report rejected",
				zap.String("session", outcomes[i].SessionID),
				zap.String("status", string(outcomes[i].Status)),
				zap.Error(outcomes[i].Err))
			continue
		}
		ix.Add(s)
	}
	c.log.Info("reports indexed",
		zap.Int("received", len(raws)),
		zap.Int("accepted", ix.Sessions()),
		zap.Int("features", len(ix.Features())))
	return ix, outcomes, nil
}
