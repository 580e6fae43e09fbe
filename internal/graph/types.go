package graph

import (
	"fmt"

	"compatcollect/internal/idl"
)

type FailureReason string

const (
	ReasonMemberConflict    FailureReason = "member_conflict"
	ReasonKindConflict      FailureReason = "kind_conflict"
	ReasonUnresolvedBase    FailureReason = "unresolved_base"
	ReasonUnresolvedInclude FailureReason = "unresolved_include"
	ReasonUnknownParent     FailureReason = "unknown_parent"
	ReasonInheritanceCycle  FailureReason = "inheritance_cycle"
)

// MergeConflict is an irreconcilable collision. It removes the definition
// from the graph.
type MergeConflict struct {
	Definition string
	Member     string
	Reason     FailureReason
	Existing   idl.Origin
	Incoming   idl.Origin
}

func (e *MergeConflict) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s: member %q of %s (%s) conflicts with %s (%s)",
			e.Reason, e.Member, e.Definition, at(e.Incoming), at(e.Existing), e.Existing.Source)
	}
	return fmt.Sprintf("%s: %s (%s) conflicts with %s (%s)",
		e.Reason, e.Definition, at(e.Incoming), at(e.Existing), e.Existing.Source)
}

// UnresolvedReference is a partial, includes statement or parent naming a
// definition that does not exist.
type UnresolvedReference struct {
	Definition string
	Target     string
	Reason     FailureReason
	Origin     idl.Origin
}

func (e *UnresolvedReference) Error() string {
	return fmt.Sprintf("%s: %s references unknown %s (%s)", e.Reason, e.Definition, e.Target, at(e.Origin))
}

func at(o idl.Origin) string {
	if o.Position.Line == 0 {
		return o.Source + ":" + o.File
	}
	return fmt.Sprintf("%s:%s:%d", o.Source, o.File, o.Position.Line)
}

// Slot is a member together with where it was declared.
type Slot struct {
	idl.Member
	// From is the definition that declared the member: the node itself, or
	// the mixin it was copied from.
	From   string     `json:"from"`
	Origin idl.Origin `json:"origin"`
}

// Node is one fully merged definition.
type Node struct {
	Name     string       `json:"name"`
	Kind     idl.Kind     `json:"kind"`
	Inherits string       `json:"inherits,omitempty"`
	ExtAttrs idl.ExtAttrs `json:"ext_attrs,omitempty"`
	// Members are the node's own members, base first, then partials.
	Members []Slot `json:"members,omitempty"`
	// Flattened is Members plus copies of every included mixin's members.
	// It is only populated for interfaces.
	Flattened []Slot       `json:"flattened,omitempty"`
	Includes  []string     `json:"includes,omitempty"`
	Values    []string     `json:"values,omitempty"`
	Type      string       `json:"type,omitempty"`
	Origins   []idl.Origin `json:"origins"`
}

// IsInterface reports whether the node is a (non-callback) interface.
func (n *Node) IsInterface() bool {
	return n.Kind == idl.KindInterface
}

// AllMembers returns the flattened members of interfaces and the own members
// of every other kind.
func (n *Node) AllMembers() []Slot {
	if n.Flattened != nil {
		return n.Flattened
	}
	return n.Members
}

type pending struct {
	def    idl.Definition
	origin idl.Origin
}
