package idl

import "strings"

// Kind identifies the variant of a Definition.
type Kind string

const (
	KindInterface         Kind = "interface"
	KindMixin             Kind = "interface mixin"
	KindCallbackInterface Kind = "callback interface"
	KindDictionary        Kind = "dictionary"
	KindNamespace         Kind = "namespace"
	KindEnum              Kind = "enum"
	KindTypedef           Kind = "typedef"
	KindCallback          Kind = "callback"
	KindIncludes          Kind = "includes"
)

// Position locates a token in a source file.
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Definition is one top-level WebIDL construct. The concrete types are
// *Interface, *Mixin, *Dictionary, *Namespace, *Enum, *Typedef, *Callback
// and *Includes.
type Definition interface {
	DefName() string
	DefKind() Kind
	IsPartial() bool
	Pos() Position
	definition()
}

// Container holds the parts shared by every definition that has a member body.
type Container struct {
	Name     string   `json:"name"`
	Partial  bool     `json:"partial,omitempty"`
	ExtAttrs ExtAttrs `json:"ext_attrs,omitempty"`
	Members  []Member `json:"members"`
	Position Position `json:"position"`
}

func (c *Container) DefName() string { return c.Name }
func (c *Container) IsPartial() bool { return c.Partial }
func (c *Container) Pos() Position   { return c.Position }

// Interface is an interface or callback interface.
type Interface struct {
	Container
	Inherits string `json:"inherits,omitempty"`
	Callback bool   `json:"callback,omitempty"`
}

func (d *Interface) DefKind() Kind {
	if d.Callback {
		return KindCallbackInterface
	}
	return KindInterface
}

// Mixin is an interface mixin.
type Mixin struct {
	Container
}

func (d *Mixin) DefKind() Kind { return KindMixin }

type Dictionary struct {
	Container
	Inherits string `json:"inherits,omitempty"`
}

func (d *Dictionary) DefKind() Kind { return KindDictionary }

type Namespace struct {
	Container
}

func (d *Namespace) DefKind() Kind { return KindNamespace }

type Enum struct {
	Name     string   `json:"name"`
	Values   []string `json:"values"`
	ExtAttrs ExtAttrs `json:"ext_attrs,omitempty"`
	Position Position `json:"position"`
}

func (d *Enum) DefName() string { return d.Name }
func (d *Enum) DefKind() Kind   { return KindEnum }
func (d *Enum) IsPartial() bool { return false }
func (d *Enum) Pos() Position   { return d.Position }

type Typedef struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

func (d *Typedef) DefName() string { return d.Name }
func (d *Typedef) DefKind() Kind   { return KindTypedef }
func (d *Typedef) IsPartial() bool { return false }
func (d *Typedef) Pos() Position   { return d.Position }

// Callback is a callback function definition.
type Callback struct {
	Name     string   `json:"name"`
	Text     string   `json:"text"`
	Position Position `json:"position"`
}

func (d *Callback) DefName() string { return d.Name }
func (d *Callback) DefKind() Kind   { return KindCallback }
func (d *Callback) IsPartial() bool { return false }
func (d *Callback) Pos() Position   { return d.Position }

// Includes is an "A includes M;" statement. DefName is the including interface.
type Includes struct {
	Target   string   `json:"target"`
	Mixin    string   `json:"mixin"`
	Position Position `json:"position"`
}

func (d *Includes) DefName() string { return d.Target }
func (d *Includes) DefKind() Kind   { return KindIncludes }
func (d *Includes) IsPartial() bool { return false }
func (d *Includes) Pos() Position   { return d.Position }

func (*Interface) definition()  {}
func (*Mixin) definition()      {}
func (*Dictionary) definition() {}
func (*Namespace) definition()  {}
func (*Enum) definition()       {}
func (*Typedef) definition()    {}
func (*Callback) definition()   {}
func (*Includes) definition()   {}

// ContainerOf returns the member body of a definition, or nil for definitions
// without one.
func ContainerOf(d Definition) *Container {
	switch v := d.(type) {
	case *Interface:
		return &v.Container
	case *Mixin:
		return &v.Container
	case *Dictionary:
		return &v.Container
	case *Namespace:
		return &v.Container
	case *Enum, *Typedef, *Callback, *Includes:
		return nil
	default:
		panic("idl: unknown definition type")
	}
}

// MemberKind identifies the variant of a Member.
type MemberKind string

const (
	MemberAttribute     MemberKind = "attribute"
	MemberOperation     MemberKind = "operation"
	MemberConstant      MemberKind = "const"
	MemberConstructor   MemberKind = "constructor"
	MemberField         MemberKind = "field"
	MemberIterable      MemberKind = "iterable"
	MemberAsyncIterable MemberKind = "async_iterable"
	MemberMaplike       MemberKind = "maplike"
	MemberSetlike       MemberKind = "setlike"
	MemberStringifier   MemberKind = "stringifier"
)

// Member is an attribute, operation, constant or other body entry.
type Member struct {
	Kind     MemberKind `json:"kind"`
	Name     string     `json:"name,omitempty"`
	Type     string     `json:"type,omitempty"`
	Args     string     `json:"args,omitempty"`
	Special  string     `json:"special,omitempty"`
	Static   bool       `json:"static,omitempty"`
	Readonly bool       `json:"readonly,omitempty"`
	Required bool       `json:"required,omitempty"`
	ExtAttrs ExtAttrs   `json:"ext_attrs,omitempty"`
	// Text is the whitespace-normalized source of the member, used to decide
	// whether two declarations are identical.
	Text     string   `json:"text"`
	Position Position `json:"position"`
}

// Key is the identity a member name must be unique under. Operations and
// constructors may share a key as overloads.
func (m Member) Key() string {
	switch m.Kind {
	case MemberIterable, MemberAsyncIterable, MemberMaplike, MemberSetlike, MemberStringifier:
		return "@" + string(m.Kind)
	case MemberConstructor:
		return "@constructor"
	}
	if m.Name == "" {
		return "@" + m.Special + ":" + m.Text
	}
	if m.Static {
		return "static " + m.Name
	}
	return m.Name
}

// Overloadable reports whether several declarations may share the member's key.
func (m Member) Overloadable() bool {
	return m.Kind == MemberOperation || m.Kind == MemberConstructor
}

// ExtAttr is one extended attribute, e.g. [Exposed=(Window,Worker)].
type ExtAttr struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type ExtAttrs []ExtAttr

// Get returns the value of the named attribute.
func (a ExtAttrs) Get(name string) (string, bool) {
	for _, e := range a {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

func (a ExtAttrs) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Exposed returns the global names listed in [Exposed], or nil if absent.
// "*" is returned as a single element.
func (a ExtAttrs) Exposed() []string {
	v, ok := a.Get("Exposed")
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "(")
	v = strings.TrimSuffix(v, ")")
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String renders the attributes in source form.
func (a ExtAttrs) String() string {
	if len(a) == 0 {
		return ""
	}
	parts := make([]string, len(a))
	for i, e := range a {
		if e.Value == "" {
			parts[i] = e.Name
		} else {
			parts[i] = e.Name + "=" + e.Value
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
