package browsers

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// ErrUnknownBrowser is returned for browser ids missing from the catalog.
var ErrUnknownBrowser = errors.New("unknown browser")

// Browser is one catalog entry.
type Browser struct {
	ID       string   `yaml:"-"`
	Name     string   `yaml:"name"`
	Releases []string `yaml:"releases"`
	// Upstream is the engine this browser mirrors when it has no evidence
	// of its own.
	Upstream string `yaml:"upstream,omitempty"`
	// Fork is the first release of this browser that mirrors Upstream.
	Fork string `yaml:"fork,omitempty"`
	// UpstreamVersions maps this browser's releases to upstream releases when
	// the numbering differs.
	UpstreamVersions map[string]string `yaml:"upstream_versions,omitempty"`
	// MirrorFeatures limits mirroring to features under these prefixes.
	MirrorFeatures []string `yaml:"mirror_features,omitempty"`

	parsed []*version.Version
}

type catalogFile struct {
	Browsers map[string]*Browser `yaml:"browsers"`
}

// Catalog is the set of known browsers and their ordered releases.
type Catalog struct {
	browsers map[string]*Browser
	ids      []string
}

// LoadCatalog reads a YAML browser catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read browser catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog and sorts every release list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse browser catalog: %w", err)
	}
	if len(f.Browsers) == 0 {
		return nil, errors.New("browser catalog is empty")
	}

	c := &Catalog{browsers: make(map[string]*Browser, len(f.Browsers))}
	for id, b := range f.Browsers {
		if b == nil {
			b = &Browser{}
		}
		b.ID = id
		if err := b.sortReleases(); err != nil {
			return nil, fmt.Errorf("browser %s: %w", id, err)
		}
		c.browsers[id] = b
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)

	for _, id := range c.ids {
		b := c.browsers[id]
		if b.Upstream == "" {
			continue
		}
		if _, ok := c.browsers[b.Upstream]; !ok {
			return nil, fmt.Errorf("browser %s: upstream %s: %w", id, b.Upstream, ErrUnknownBrowser)
		}
	}
	return c, nil
}

func (b *Browser) sortReleases() error {
	seen := make(map[string]bool, len(b.Releases))
	type rel struct {
		raw string
		v   *version.Version
	}
	rels := make([]rel, 0, len(b.Releases))
	for _, r := range b.Releases {
		if seen[r] {
			continue
		}
		seen[r] = true
		v, err := version.NewVersion(r)
		if err != nil {
			return fmt.Errorf("release %q: %w", r, err)
		}
		rels = append(rels, rel{raw: r, v: v})
	}
	sort.SliceStable(rels, func(i, j int) bool { return rels[i].v.LessThan(rels[j].v) })

	b.Releases = b.Releases[:0]
	b.parsed = b.parsed[:0]
	for _, r := range rels {
		b.Releases = append(b.Releases, r.raw)
		b.parsed = append(b.parsed, r.v)
	}
	return nil
}

// IDs returns every browser id in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

func (c *Catalog) Browser(id string) (*Browser, bool) {
	b, ok := c.browsers[id]
	return b, ok
}

// Releases returns the browser's releases in ascending release order.
func (c *Catalog) Releases(id string) []string {
	b, ok := c.browsers[id]
	if !ok {
		return nil
	}
	return b.Releases
}

// Snap maps an observed version (e.g. "80.0.3987.132") to the catalog
// release it belongs to: the greatest release not above it.
func (c *Catalog) Snap(id, observed string) (string, error) {
	b, ok := c.browsers[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBrowser, id)
	}
	v, err := version.NewVersion(strings.TrimSpace(observed))
	if err != nil {
		return "", fmt.Errorf("browser %s: version %q: %w", id, observed, err)
	}
	i := sort.Search(len(b.parsed), func(i int) bool { return b.parsed[i].GreaterThan(v) })
	if i == 0 {
		return "", fmt.Errorf("browser %s: version %s predates every known release", id, observed)
	}
	return b.Releases[i-1], nil
}

// Index returns the position of a release in the browser's ordering.
func (c *Catalog) Index(id, release string) int {
	b, ok := c.browsers[id]
	if !ok {
		return -1
	}
	for i, r := range b.Releases {
		if r == release {
			return i
		}
	}
	return -1
}
