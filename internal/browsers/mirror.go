package browsers

import (
	"fmt"
	"sort"
	"strings"

	"compatcollect/internal/compat"

	"github.com/hashicorp/go-version"
)

// MirrorRule says Child takes Parent's support for a feature when Child has
// no evidence of its own.
type MirrorRule struct {
	Child  string
	Parent string
	// Features restricts the rule to features under these prefixes. Empty
	// means every feature.
	Features    []string
	ForkVersion string
	VersionMap  map[string]string
}

// Applies reports whether the rule covers the feature.
func (r MirrorRule) Applies(id compat.FeatureID) bool {
	if len(r.Features) == 0 {
		return true
	}
	for _, p := range r.Features {
		if string(id) == p || strings.HasPrefix(string(id), strings.TrimSuffix(p, ".")+".") {
			return true
		}
	}
	return false
}

// MirrorRules derives one rule per browser with an upstream. extra adds or
// replaces rules by child (child -> parent).
func (c *Catalog) MirrorRules(extra map[string]string) ([]MirrorRule, error) {
	rules := make(map[string]MirrorRule)
	for _, id := range c.ids {
		b := c.browsers[id]
		if b.Upstream == "" {
			continue
		}
		rules[id] = MirrorRule{
			Child:       id,
			Parent:      b.Upstream,
			Features:    b.MirrorFeatures,
			ForkVersion: b.Fork,
			VersionMap:  b.UpstreamVersions,
		}
	}
	for child, parent := range extra {
		if _, ok := c.browsers[child]; !ok {
			return nil, fmt.Errorf("mirror %s: %w", child, ErrUnknownBrowser)
		}
		if _, ok := c.browsers[parent]; !ok {
			return nil, fmt.Errorf("mirror %s -> %s: %w", child, parent, ErrUnknownBrowser)
		}
		r := rules[child]
		if r.Parent != parent {
			r = MirrorRule{Child: child, Parent: parent}
		}
		rules[child] = r
	}

	out := make([]MirrorRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Child < out[j].Child })
	return out, nil
}

// ParentVersion maps a child release to the parent release it mirrors. The
// explicit version map wins; otherwise releases before the fork point do not
// mirror and later ones snap onto the parent's release list.
func (c *Catalog) ParentVersion(r MirrorRule, release string) (string, bool) {
	if v, ok := r.VersionMap[release]; ok {
		if c.Index(r.Parent, v) < 0 {
			return "", false
		}
		return v, true
	}
	if r.ForkVersion != "" {
		cur, err := version.NewVersion(release)
		if err != nil {
			return "", false
		}
		fork, err := version.NewVersion(r.ForkVersion)
		if err != nil || cur.LessThan(fork) {
			return "", false
		}
	}
	v, err := c.Snap(r.Parent, release)
	if err != nil {
		return "", false
	}
	return v, true
}
