package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"compatcollect/internal/analysis"
	"compatcollect/internal/diag"
	"compatcollect/internal/graph"
	"compatcollect/internal/pipeline"
	"compatcollect/internal/report"
	"compatcollect/internal/storage"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	success = color.New(color.FgHiGreen).SprintFunc()
	warning = color.New(color.FgHiYellow).SprintFunc()
	failure = color.New(color.FgHiRed).SprintFunc()
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewTable(w, tablewriter.WithRowAutoWrap(tw.WrapNone))
	table.Header(header)
	return table
}

func printGraphSummary(w io.Writer, res *pipeline.GraphResult) {
	g := res.Graph
	table := newTable(w, "Graph", "Count")
	table.Append([]string{"Definitions", strconv.Itoa(len(g.Nodes))})
	table.Append([]string{"Members", strconv.Itoa(g.MemberCount())})
	table.Append([]string{"Edges", strconv.Itoa(len(g.Edges))})
	table.Append([]string{"Features", strconv.Itoa(res.Features.Len())})
	if res.Custom != nil {
		table.Append([]string{"Custom tests", strconv.Itoa(len(res.Custom.Tests))})
	}
	reasons := g.FailureReasonCounts()
	for _, reason := range sortedKeys(reasons) {
		table.Append([]string{"  " + string(reason), strconv.Itoa(reasons[reason])})
	}
	table.Render()
}

func printImpact(w io.Writer, report *analysis.ImpactReport) {
	if report == nil {
		return
	}
	if len(report.Changed) == 0 {
		fmt.Fprintln(w, "🔍 No definitions changed since the last snapshot.")
		return
	}
	fmt.Fprintf(w, "🔍 %d definitions changed since the last snapshot.\n", len(report.Changed))
	table := newTable(w, "Definition", "Impact")
	for _, n := range report.DirectlyAffected {
		table.Append([]string{n.Name, "changed"})
	}
	for _, n := range report.IndirectlyAffected {
		table.Append([]string{n.Name, "inherits"})
	}
	for _, name := range report.Changed {
		if !containsNode(report.DirectlyAffected, name) {
			table.Append([]string{name, warning("removed")})
		}
	}
	table.Render()
	fmt.Fprintf(w, "   %d features need fresh reports.\n", len(report.Features))
}

func containsNode(nodes []*graph.Node, name string) bool {
	for _, n := range nodes {
		if n.Name == name {
			return true
		}
	}
	return false
}

func printRun(w io.Writer, run storage.Run, outcomes []report.Outcome) {
	byStatus := make(map[string]int)
	for _, o := range outcomes {
		byStatus[string(o.Status)]++
	}

	table := newTable(w, "Run", "Count")
	table.Append([]string{"Sessions", strconv.Itoa(run.Sessions)})
	for _, status := range sortedKeys(byStatus) {
		table.Append([]string{"  " + status, strconv.Itoa(byStatus[status])})
	}
	table.Append([]string{"Features", strconv.Itoa(run.Features)})
	table.Append([]string{"Orphans", strconv.Itoa(run.Orphans)})
	table.Render()
}

func printDiagnostics(w io.Writer, list diag.List) {
	if len(list) == 0 {
		fmt.Fprintln(w, success("✅ No diagnostics."))
		return
	}
	errs, warns := list.Count(diag.SeverityError), list.Count(diag.SeverityWarning)
	line := fmt.Sprintf("⚠️  %d diagnostics (%d errors, %d warnings)", len(list), errs, warns)
	if errs > 0 {
		fmt.Fprintln(w, failure(line))
	} else {
		fmt.Fprintln(w, warning(line))
	}

	counts := list.ByKind()
	table := newTable(w, "Kind", "Count")
	for _, kind := range list.Kinds() {
		table.Append([]string{kind, strconv.Itoa(counts[kind])})
	}
	table.Render()
}

func printRuns(w io.Writer, runs []storage.Run) {
	table := newTable(w, "Run", "Started", "Sessions", "Rejected", "Features", "Orphans", "Diagnostics")
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.Sessions),
			strconv.Itoa(r.Rejected),
			strconv.Itoa(r.Features),
			strconv.Itoa(r.Orphans),
			strconv.Itoa(r.Diagnostics),
		})
	}
	table.Render()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
