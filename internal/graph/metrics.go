package graph

import "errors"

// FailureReasonCounts tallies failures and warnings by reason.
func (g *Graph) FailureReasonCounts() map[FailureReason]int {
	counts := make(map[FailureReason]int)
	if g == nil {
		return counts
	}
	all := append(append([]error(nil), g.Failures...), g.Warnings...)
	for _, err := range all {
		var mc *MergeConflict
		var ur *UnresolvedReference
		switch {
		case errors.As(err, &mc):
			counts[mc.Reason]++
		case errors.As(err, &ur):
			counts[ur.Reason]++
		}
	}
	return counts
}

// MemberCount is the number of flattened members across every node.
func (g *Graph) MemberCount() int {
	total := 0
	for _, n := range g.Nodes {
		total += len(n.AllMembers())
	}
	return total
}
