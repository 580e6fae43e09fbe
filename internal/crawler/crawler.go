package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"compatcollect/internal/idl"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoUsableSources is returned when not a single source produced a parsed file.
var ErrNoUsableSources = errors.New("no interface-description source could be loaded")

// Source is a named directory of WebIDL files.
type Source struct {
	Name     string
	Dir      string
	Priority int
	// Custom marks the local overlay source. It always gets the highest priority.
	Custom bool
	// FS overrides Dir when set.
	FS fs.FS
}

// SourceError reports a source that could not be read at all.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Crawler loads WebIDL sources from disk.
type Crawler struct {
	log     *zap.Logger
	workers int
	ignored []string
}

// NewCrawler creates a new crawler instance. workers bounds parallel parsing.
func NewCrawler(log *zap.Logger, workers int) *Crawler {
	if workers <= 0 {
		workers = 4
	}
	return &Crawler{
		log:     log,
		workers: workers,
		ignored: []string{".git", "node_modules", "testdata"},
	}
}

// LoadSource parses every .idl file of a source. Files are visited in
// lexicographic order and the returned set keeps that order. A file that fails
// to read or parse is reported in the error slice and skipped.
func (c *Crawler) LoadSource(ctx context.Context, src Source) (idl.DefinitionSet, []error) {
	set := idl.DefinitionSet{Source: src.Name, Priority: src.Priority}

	fsys := src.FS
	if fsys == nil {
		if _, err := os.Stat(src.Dir); err != nil {
			return set, []error{&SourceError{Source: src.Name, Err: err}}
		}
		fsys = os.DirFS(src.Dir)
	}

	files, err := c.listFiles(fsys)
	if err != nil {
		return set, []error{&SourceError{Source: src.Name, Err: err}}
	}

	parsed := make([]*idl.SourceFile, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				failures[i] = &idl.ParseError{File: name, Msg: fmt.Sprintf("read failed: %v", err)}
				return nil
			}
			defs, err := idl.Parse(name, data)
			if err != nil {
				failures[i] = err
				return nil
			}
			parsed[i] = &idl.SourceFile{Name: name, Definitions: defs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return set, []error{&SourceError{Source: src.Name, Err: err}}
	}

	var errs []error
	for i := range files {
		if failures[i] != nil {
			c.log.Warn("skipping unparsable IDL file",
				zap.String("source", src.Name),
				zap.String("file", files[i]),
				zap.Error(failures[i]))
			errs = append(errs, failures[i])
			continue
		}
		set.Files = append(set.Files, *parsed[i])
	}

	c.log.Debug("loaded IDL source",
		zap.String("source", src.Name),
		zap.Int("files", len(set.Files)),
		zap.Int("definitions", set.Len()),
		zap.Int("failures", len(errs)))
	return set, errs
}

// LoadAll loads every source in parallel and returns the sets in input order.
// It fails only when no source yields a single parsed file.
func (c *Crawler) LoadAll(ctx context.Context, sources []Source) ([]idl.DefinitionSet, []error, error) {
	sources = withCustomPriority(sources)

	sets := make([]idl.DefinitionSet, len(sources))
	perSource := make([][]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			sets[i], perSource[i] = c.LoadSource(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	usable := 0
	for i := range sources {
		errs = append(errs, perSource[i]...)
		if len(sets[i].Files) > 0 {
			usable++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errs, err
	}
	if usable == 0 {
		return sets, errs, ErrNoUsableSources
	}
	return sets, errs, nil
}

func (c *Crawler) listFiles(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			for _, ign := range c.ignored {
				if p != "." && d.Name() == ign {
					return fs.SkipDir
				}
			}
			return nil
		}

		if strings.EqualFold(path.Ext(d.Name()), ".idl") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// WalkDir is already lexical per directory; sorting the full paths keeps
	// the order stable across nesting too.
	sort.Strings(files)
	return files, nil
}

// withCustomPriority lifts custom sources above every other source.
func withCustomPriority(sources []Source) []Source {
	out := make([]Source, len(sources))
	copy(out, sources)
	top := 0
	for _, s := range out {
		if !s.Custom && s.Priority > top {
			top = s.Priority
		}
	}
	for i := range out {
		if out[i].Custom && out[i].Priority <= top {
			out[i].Priority = top + 1
		}
	}
	return out
}
