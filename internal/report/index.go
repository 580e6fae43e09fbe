package report

import (
	"sort"

	"compatcollect/internal/compat"
)

// Cell is one browser release.
type Cell struct {
	Browser string
	Version string
}

// Observation is one test result of one session.
type Observation struct {
	Session  string
	Cell     Cell
	Exposure compat.Exposure
	Value    compat.Value
	Message  string
}

// Index holds accepted sessions by feature and by browser release. Repeated
// sessions for the same cell are all kept.
type Index struct {
	byFeature map[compat.FeatureID][]Observation
	byCell    map[Cell][]string
	sessions  int
}

func NewIndex() *Index {
	return &Index{
		byFeature: make(map[compat.FeatureID][]Observation),
		byCell:    make(map[Cell][]string),
	}
}

// Add indexes an accepted session. Not safe for concurrent use.
func (ix *Index) Add(s *Session) {
	cell := Cell{Browser: s.Browser, Version: s.Version}
	ix.byCell[cell] = append(ix.byCell[cell], s.ID)
	ix.sessions++

	features := make([]compat.FeatureID, 0, len(s.Results))
	for id := range s.Results {
		features = append(features, id)
	}
	sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })

	for _, id := range features {
		for _, tr := range s.Results[id] {
			ix.byFeature[id] = append(ix.byFeature[id], Observation{
				Session:  s.ID,
				Cell:     cell,
				Exposure: tr.Exposure,
				Value:    tr.Result,
				Message:  tr.Message,
			})
		}
	}
}

// Features returns every feature with at least one observation, sorted.
func (ix *Index) Features() []compat.FeatureID {
	ids := make([]compat.FeatureID, 0, len(ix.byFeature))
	for id := range ix.byFeature {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ForFeature returns the observations of a feature in ingest order.
func (ix *Index) ForFeature(id compat.FeatureID) []Observation {
	return ix.byFeature[id]
}

// SessionsFor returns the ids of every session for a browser release.
func (ix *Index) SessionsFor(browser, version string) []string {
	return ix.byCell[Cell{Browser: browser, Version: version}]
}

// Cells returns every browser release with at least one session.
func (ix *Index) Cells() []Cell {
	cells := make([]Cell, 0, len(ix.byCell))
	for c := range ix.byCell {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Browser != cells[j].Browser {
			return cells[i].Browser < cells[j].Browser
		}
		return cells[i].Version < cells[j].Version
	})
	return cells
}

// Sessions is the number of indexed sessions.
func (ix *Index) Sessions() int { return ix.sessions }
