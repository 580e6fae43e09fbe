package extractor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"compatcollect/internal/compat"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"gopkg.in/yaml.v3"
)

const (
	keyBase = "__base"
	keyTest = "__test"
)

// CustomTest is a hand-written probe for one feature.
type CustomTest struct {
	Feature compat.FeatureID `json:"feature"`
	// Base is the setup code shared with every sub-feature.
	Base string `json:"base,omitempty"`
	Test string `json:"test,omitempty"`
}

// SnippetError reports JavaScript in a custom test that does not parse.
type SnippetError struct {
	File    string
	Feature compat.FeatureID
	Key     string
	Line    int
	Column  int
}

func (e *SnippetError) Error() string {
	return fmt.Sprintf("%s: %s (%s): invalid JavaScript at %d:%d", e.File, e.Feature, e.Key, e.Line, e.Column)
}

// CustomTests is a parsed custom-test file.
type CustomTests struct {
	File  string
	Tests map[compat.FeatureID]CustomTest
}

// LoadCustomTests reads a YAML custom-test file. Snippets that are not valid
// JavaScript are reported and left out; the rest of the file still loads.
func LoadCustomTests(ctx context.Context, path string) (*CustomTests, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read custom tests %s: %w", path, err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse custom tests %s: %w", path, err)
	}

	ct := &CustomTests{File: path, Tests: make(map[compat.FeatureID]CustomTest)}
	v := newSnippetValidator()
	var errs []error
	for _, category := range sortedYAMLKeys(doc) {
		node := doc[category]
		errs = append(errs, ct.walk(ctx, v, compat.FeatureID(category), &node)...)
	}
	return ct, errs, nil
}

func (ct *CustomTests) walk(ctx context.Context, v *snippetValidator, id compat.FeatureID, node *yaml.Node) []error {
	var errs []error
	switch node.Kind {
	case yaml.ScalarNode:
		if err := v.check(ctx, ct.File, id, keyTest, node.Value); err != nil {
			return []error{err}
		}
		ct.Tests[id] = CustomTest{Feature: id, Test: node.Value}
	case yaml.MappingNode:
		test := CustomTest{Feature: id}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i].Value, node.Content[i+1]
			switch key {
			case keyBase, keyTest:
				if err := v.check(ctx, ct.File, id, key, val.Value); err != nil {
					errs = append(errs, err)
					continue
				}
				if key == keyBase {
					test.Base = val.Value
				} else {
					test.Test = val.Value
				}
			default:
				errs = append(errs, ct.walk(ctx, v, id+compat.FeatureID("."+key), val)...)
			}
		}
		if test.Base != "" || test.Test != "" {
			ct.Tests[id] = test
		}
	}
	return errs
}

// IDs returns the ids with a custom test in sorted order.
func (ct *CustomTests) IDs() []compat.FeatureID {
	ids := make([]compat.FeatureID, 0, len(ct.Tests))
	for id := range ct.Tests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Register adds every custom-tested feature to r. A feature takes the
// exposures of its nearest registered ancestor, or Window.
func (ct *CustomTests) Register(r *Registry) {
	for _, id := range ct.IDs() {
		if !strings.HasPrefix(string(id), "api.") {
			continue
		}
		exposures := []compat.Exposure{compat.ExposureWindow}
		for p := id; p != ""; p = p.Parent() {
			if f, ok := r.Lookup(p); ok {
				exposures = f.Exposures
				break
			}
		}
		r.Add(Feature{ID: id, Kind: KindCustom, Exposures: exposures, Definition: ct.File})
	}
}

type snippetValidator struct {
	parser *sitter.Parser
}

func newSnippetValidator() *snippetValidator {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	return &snippetValidator{parser: parser}
}

// check parses a snippet as a function body, so top-level return is allowed.
func (v *snippetValidator) check(ctx context.Context, file string, id compat.FeatureID, key, code string) error {
	src := []byte("(function(){\n" + code + "\n})();")
	tree, err := v.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("failed to parse snippet for %s: %w", id, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	bad := firstError(root)
	if bad == nil {
		bad = root
	}
	p := bad.StartPoint()
	return &SnippetError{
		File:    file,
		Feature: id,
		Key:     key,
		// The wrapper adds one line before the snippet.
		Line:   int(p.Row),
		Column: int(p.Column) + 1,
	}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func sortedYAMLKeys(m map[string]yaml.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
