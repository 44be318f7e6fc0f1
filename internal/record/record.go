// Package record defines the generic record model used by the mangling
// passes: a tagged element with ordered attributes, character data, and
// nested children. Attribute order is preserved so that untouched records
// survive a round trip structurally unchanged.
package record

// Attr is a single name/value attribute on a record.
type Attr struct {
	Name  string
	Value string
}

// Record is one tagged entity from an export document. Kind is the element
// name (e.g. "User", "OSPropertyEntry", "data"); Attrs keeps the original
// attribute order.
type Record struct {
	Kind     string
	Attrs    []Attr
	Text     string
	Children []*Record
}

// New creates a record of the given kind with no attributes.
func New(kind string) *Record {
	return &Record{Kind: kind}
}

// Get returns the value of the named attribute, or "" if absent.
func (r *Record) Get(name string) string {
	v, _ := r.Lookup(name)
	return v
}

// Lookup returns the value of the named attribute and whether it exists.
func (r *Record) Lookup(name string) (string, bool) {
	for _, a := range r.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}

	return "", false
}

// Has reports whether the named attribute exists with a non-empty value.
func (r *Record) Has(name string) bool {
	v, ok := r.Lookup(name)
	return ok && v != ""
}

// Set replaces the value of the named attribute in place, appending a new
// attribute if none exists yet.
func (r *Record) Set(name, value string) {
	for i := range r.Attrs {
		if r.Attrs[i].Name == name {
			r.Attrs[i].Value = value
			return
		}
	}

	r.Attrs = append(r.Attrs, Attr{Name: name, Value: value})
}

// Child returns the first child of the given kind, or nil.
func (r *Record) Child(kind string) *Record {
	for _, c := range r.Children {
		if c.Kind == kind {
			return c
		}
	}

	return nil
}

// ChildrenOf returns all children of the given kind.
func (r *Record) ChildrenOf(kind string) []*Record {
	var out []*Record

	for _, c := range r.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}

	return out
}

// ChildText returns the character data of the first child of the given kind,
// or "" if there is no such child.
func (r *Record) ChildText(kind string) string {
	if c := r.Child(kind); c != nil {
		return c.Text
	}

	return ""
}
