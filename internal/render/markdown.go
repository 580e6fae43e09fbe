package render

import (
	"strings"

	"compatcollect/internal/compat"
	"compatcollect/internal/matrix"
)

// MatrixTable renders the supported ranges of the features under prefix as a
// markdown table with one column per browser. Orphan features are marked
// with an asterisk. It returns "" when no feature has a supported range.
func MatrixTable(m *matrix.Matrix, order matrix.ReleaseOrder, browserIDs []string, prefix string) string {
	summary := m.Summary(order)

	var rows []string
	for _, id := range m.Features() {
		if !strings.HasPrefix(string(id), prefix) || len(summary[id]) == 0 {
			continue
		}
		label := "`" + string(id) + "`"
		if _, orphan, _ := m.Lookup(id); orphan {
			label += " \\*"
		}
		cells := []string{label}
		for _, b := range browserIDs {
			cells = append(cells, rangesCell(summary[id][b]))
		}
		rows = append(rows, row(cells))
	}
	if len(rows) == 0 {
		return ""
	}

	var sb strings.Builder
	header := append([]string{"Feature"}, browserIDs...)
	sb.WriteString(row(header))
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	sb.WriteString(row(sep))
	for _, r := range rows {
		sb.WriteString(r)
	}
	return sb.String()
}

func row(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |\n"
}

func rangesCell(ranges []compat.Range) string {
	if len(ranges) == 0 {
		return "-"
	}
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		if r.Removed == "" {
			parts[i] = r.Added + "+"
		} else {
			parts[i] = r.Added + " (removed in " + r.Removed + ")"
		}
	}
	return strings.Join(parts, "<br>")
}
