package reducer

import (
	"fmt"
	"strings"

	"compatcollect/internal/compat"
)

// State is how a cell got its value.
type State int

const (
	StateEmpty State = iota
	StateDirect
	StateMirrored
	StateSuppressed
	StateOverride
	// StatePropagated marks cells filled in by forward propagation.
	StatePropagated
)

func (s State) String() string {
	switch s {
	case StateDirect:
		return "direct"
	case StateMirrored:
		return "mirrored"
	case StateSuppressed:
		return "suppressed"
	case StateOverride:
		return "override"
	case StatePropagated:
		return "propagated"
	default:
		return "empty"
	}
}

// Resolution is the resolved state of one (browser, version) cell. Mirrored
// cells carry the parent cell they were copied from.
type Resolution struct {
	Version string
	State   State
	Value   compat.Value

	ParentBrowser string
	ParentVersion string
	// Forced is set on mirrored cells whose parent value came from an
	// override, directly or through another mirror.
	Forced bool
}

// HasValue reports whether the cell ends up in the support map.
func (r Resolution) HasValue() bool {
	return r.State != StateEmpty && r.State != StateSuppressed
}

// MirrorCycleError is returned when mirror rules loop back to a browser that
// is already being resolved. Only the affected feature fails.
type MirrorCycleError struct {
	Feature compat.FeatureID
	Cycle   []string
}

func (e *MirrorCycleError) Error() string {
	return fmt.Sprintf("%s: mirror cycle %s", e.Feature, strings.Join(e.Cycle, " -> "))
}

// RegressionWarning reports a plain false after a supported run. The cell is
// kept as supported; only an override can end a run.
type RegressionWarning struct {
	Feature compat.FeatureID
	Browser string
	Version string
	// Since is the version that started the run.
	Since string
}

func (w *RegressionWarning) Error() string {
	return fmt.Sprintf("%s: %s %s reported false after support since %s (regression_ignored)",
		w.Feature, w.Browser, w.Version, w.Since)
}
