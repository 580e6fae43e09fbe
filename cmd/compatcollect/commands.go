package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"compatcollect/internal/browsers"
	"compatcollect/internal/compat"
	"compatcollect/internal/matrix"
	"compatcollect/internal/pipeline"
	"compatcollect/internal/render"
	"compatcollect/internal/storage"

	"github.com/spf13/cobra"
)

var idlCmd = &cobra.Command{
	Use:   "idl",
	Short: "Load, merge and resolve the WebIDL sources",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		p := pipeline.New(e.cfg, e.log)
		fmt.Printf("📂 Loading %d IDL sources...\n", len(p.Sources()))

		start := time.Now()
		res, err := p.BuildGraph(cmd.Context())
		if err != nil {
			printDiagnostics(os.Stdout, res.Diagnostics)
			return fmt.Errorf("graph build failed: %w", err)
		}
		fmt.Println(success(fmt.Sprintf("✅ Graph built in %v. Found %d definitions.",
			time.Since(start).Round(time.Millisecond), len(res.Graph.Nodes))))

		printGraphSummary(os.Stdout, res)
		printImpact(os.Stdout, res.Impact)
		printDiagnostics(os.Stdout, res.Diagnostics)
		if e.cfg.Output.Graph != "" {
			fmt.Printf("💾 Graph snapshot: %s\n", e.cfg.Output.Graph)
		}

		if mermaidPath != "" {
			// Only draw the affected neighbourhood when something changed.
			var names []string
			if res.Impact != nil && len(res.Impact.Changed) > 0 {
				for _, n := range append(res.Impact.DirectlyAffected, res.Impact.IndirectlyAffected...) {
					names = append(names, n.Name)
				}
			}
			if err := os.WriteFile(mermaidPath, []byte(render.ClassDiagram(res.Graph, names)), 0o644); err != nil {
				return fmt.Errorf("failed to write diagram: %w", err)
			}
			fmt.Printf("💾 Class diagram: %s\n", mermaidPath)
		}
		return nil
	}),
}

var (
	mermaidPath  string
	showMarkdown bool
)

func init() {
	idlCmd.Flags().StringVar(&mermaidPath, "mermaid", "", "Write a mermaid class diagram of the graph to this file")
	showCmd.Flags().BoolVar(&showMarkdown, "markdown", false, "Print a markdown table with one column per browser")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|dir]...",
	Short: "Append report files to the report store",
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		paths := args
		if len(paths) == 0 {
			if e.cfg.Reports.Dir == "" {
				return fmt.Errorf("no report paths given and reports.dir is not configured")
			}
			paths = []string{e.cfg.Reports.Dir}
		}

		store, err := storage.NewSQLiteStore(e.cfg.Reports.DB)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		stored, err := pipeline.New(e.cfg, e.log).IngestFiles(cmd.Context(), store, paths)
		if err != nil {
			return err
		}
		total, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(success(fmt.Sprintf("✅ Stored %d reports (%d in %s).", len(stored), total, e.cfg.Reports.DB)))
		return nil
	}),
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the graph, reduce every stored report and write the support matrix",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		fmt.Println("🚀 Building support matrix...")
		start := time.Now()

		res, err := pipeline.New(e.cfg, e.log).Run(cmd.Context())
		if res != nil {
			defer printDiagnostics(os.Stdout, res.Diagnostics)
		}
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}

		fmt.Println(success(fmt.Sprintf("✅ Matrix built in %v.", time.Since(start).Round(time.Millisecond))))
		printRun(os.Stdout, res.Matrix.Run, res.Matrix.Outcomes)
		if e.cfg.Output.Matrix != "" {
			fmt.Printf("💾 Matrix: %s\n", e.cfg.Output.Matrix)
		}
		return nil
	}),
}

var showCmd = &cobra.Command{
	Use:   "show [feature-prefix]",
	Short: "Print supported version ranges from the last written matrix",
	Args:  cobra.MaximumNArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}

		m, err := matrix.LoadFile(e.cfg.Output.Matrix)
		if err != nil {
			return err
		}
		catalog, err := browsers.LoadCatalog(e.cfg.Browsers)
		if err != nil {
			return err
		}

		if showMarkdown {
			out := render.MatrixTable(m, catalog, catalog.IDs(), prefix)
			if out == "" {
				fmt.Println(warning(fmt.Sprintf("No supported features match %q.", prefix)))
				return nil
			}
			fmt.Print(out)
			return nil
		}

		summary := m.Summary(catalog)
		table := newTable(os.Stdout, "Feature", "Browser", "Added", "Removed")
		shown := 0
		for _, id := range m.Features() {
			if !strings.HasPrefix(string(id), prefix) {
				continue
			}
			label := string(id)
			if _, orphan, _ := m.Lookup(id); orphan {
				label = warning(label + " (orphan)")
			}
			for _, b := range catalog.IDs() {
				for _, r := range summary[id][b] {
					table.Append([]string{label, b, r.Added, removed(r)})
					shown++
				}
			}
		}
		if shown == 0 {
			fmt.Println(warning(fmt.Sprintf("No supported features match %q.", prefix)))
			return nil
		}
		table.Render()
		return nil
	}),
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List previous matrix builds",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		store, err := storage.NewSQLiteStore(e.cfg.Reports.DB)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		runs, err := store.Runs(cmd.Context())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		printRuns(os.Stdout, runs)
		return nil
	}),
}

func removed(r compat.Range) string {
	if r.Removed == "" {
		return "-"
	}
	return r.Removed
}
