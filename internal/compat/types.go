package compat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FeatureID is a dotted path identifying a testable unit, e.g. "api.Foo.bar".
type FeatureID string

// Parent returns the enclosing feature ("api.Foo" for "api.Foo.bar").
func (f FeatureID) Parent() FeatureID {
	i := strings.LastIndexByte(string(f), '.')
	if i < 0 {
		return ""
	}
	return f[:i]
}

// Exposure is the global scope a feature is tested in.
type Exposure string

const (
	ExposureWindow        Exposure = "Window"
	ExposureWorker        Exposure = "Worker"
	ExposureSharedWorker  Exposure = "SharedWorker"
	ExposureServiceWorker Exposure = "ServiceWorker"
)

// exposureAliases maps every spelling seen in IDL and reports to its canonical exposure.
// Keys are lower-cased.
var exposureAliases = map[string]Exposure{
	"window":                     ExposureWindow,
	"worker":                     ExposureWorker,
	"dedicatedworker":            ExposureWorker,
	"dedicatedworkerglobalscope": ExposureWorker,
	"sharedworker":               ExposureSharedWorker,
	"sharedworkerglobalscope":    ExposureSharedWorker,
	"serviceworker":              ExposureServiceWorker,
	"serviceworkerglobalscope":   ExposureServiceWorker,
}

// ParseExposure canonicalizes an exposure name. It is the only place exposure
// spellings are interpreted.
func ParseExposure(s string) (Exposure, error) {
	if e, ok := exposureAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return e, nil
	}
	return "", fmt.Errorf("unknown exposure %q", s)
}

// AllExposures lists the exposures in their canonical order.
func AllExposures() []Exposure {
	return []Exposure{ExposureWindow, ExposureWorker, ExposureSharedWorker, ExposureServiceWorker}
}

// Value is the tri-state outcome of a test: supported, unsupported, or inconclusive.
// "No data" is never a Value; it is the absence of a cell.
type Value int8

const (
	Null Value = iota
	False
	True
)

// ValueOf converts a nullable boolean.
func ValueOf(b *bool) Value {
	switch {
	case b == nil:
		return Null
	case *b:
		return True
	default:
		return False
	}
}

func (v Value) String() string {
	switch v {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "null"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("test result must be true, false or null: %w", err)
	}
	*v = ValueOf(b)
	return nil
}

// Reconcile combines repeated observations of one cell. A confirmed pass is
// never downgraded: any True wins, then any False, otherwise Null.
func Reconcile(values []Value) Value {
	out := Null
	for _, v := range values {
		if v == True {
			return True
		}
		if v == False {
			out = False
		}
	}
	return out
}

// BrowserSupportMap maps a browser version to its resolved value.
type BrowserSupportMap map[string]Value

// SupportMap maps a browser name to its per-version support.
type SupportMap map[string]BrowserSupportMap

// Clone returns a deep copy.
func (s SupportMap) Clone() SupportMap {
	out := make(SupportMap, len(s))
	for b, m := range s {
		cp := make(BrowserSupportMap, len(m))
		for v, val := range m {
			cp[v] = val
		}
		out[b] = cp
	}
	return out
}
