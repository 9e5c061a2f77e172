// Package gql turns declarative field-sets into graph query documents.
package gql

import (
	"fmt"
	"sort"
	"strings"
)

// Field is one selection: a leaf name, or a name (optionally carrying
// arguments or placeholders such as "lineItems($PER_PAGE)") with children.
type Field struct {
	Name     string
	Children FieldSet

	object  bool
	invalid string
}

// IsLeaf reports whether the field selects no children.
func (f Field) IsLeaf() bool { return !f.object && f.invalid == "" }

// FieldSet is an ordered list of selections at one object level.
type FieldSet []Field

// Fields assembles a FieldSet. Items may be strings (leaves), Fields, or
// FieldSets (spliced in place). Anything else is recorded and rejected by Build.
func Fields(items ...any) FieldSet {
	out := make(FieldSet, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, Field{Name: v})
		case Field:
			out = append(out, v)
		case FieldSet:
			out = append(out, v...)
		default:
			out = append(out, Field{Name: fmt.Sprint(v), invalid: fmt.Sprintf("unsupported entry of type %T", it)})
		}
	}
	return out
}

// Object returns a field with a nested selection.
func Object(name string, children ...any) Field {
	return Field{Name: name, Children: Fields(children...), object: true}
}

// Edges wraps children as name { edges { node { ... } } }.
func Edges(name string, children ...any) Field {
	return Object(name, Object("edges", Object("node", children...)))
}

// Nodes wraps children as name { nodes { ... } }.
func Nodes(name string, children ...any) Field {
	return Object(name, Object("nodes", children...))
}

// On returns an inline fragment selection "... on Type { ... }".
func On(typeName string, children ...any) Field {
	return Object("... on "+typeName, children...)
}

// MalformedFieldSetError reports a field-set that cannot be rendered.
type MalformedFieldSetError struct {
	Path   string
	Reason string
}

func (e *MalformedFieldSetError) Error() string {
	if e.Path == "" {
		return "malformed field set: " + e.Reason
	}
	return fmt.Sprintf("malformed field set at %s: %s", e.Path, e.Reason)
}

// Build renders fs as "{ ... }", replaces every substitution token verbatim
// and prepends prefix followed by a single space when prefix is non-empty.
func Build(fs FieldSet, subs map[string]string, prefix string) (string, error) {
	var b strings.Builder
	if err := render(&b, fs, ""); err != nil {
		return "", err
	}
	doc := substitute(b.String(), subs)
	if prefix != "" {
		doc = prefix + " " + doc
	}
	return doc, nil
}

// MustBuild is Build for static definitions known to be well formed.
func MustBuild(fs FieldSet, subs map[string]string, prefix string) string {
	doc, err := Build(fs, subs, prefix)
	if err != nil {
		panic(err)
	}
	return doc
}

func render(b *strings.Builder, fs FieldSet, path string) error {
	b.WriteString("{")
	seen := make(map[string]struct{}, len(fs))
	for _, f := range fs {
		at := joinPath(path, f.Name)
		if f.invalid != "" {
			return &MalformedFieldSetError{Path: at, Reason: f.invalid}
		}
		if strings.TrimSpace(f.Name) == "" {
			return &MalformedFieldSetError{Path: path, Reason: "empty field name"}
		}
		if !f.object {
			if _, dup := seen[f.Name]; dup {
				continue
			}
			seen[f.Name] = struct{}{}
			b.WriteString(" ")
			b.WriteString(f.Name)
			continue
		}
		if len(f.Children) == 0 {
			return &MalformedFieldSetError{Path: at, Reason: "nested selection is empty"}
		}
		b.WriteString(" ")
		b.WriteString(f.Name)
		b.WriteString(" ")
		if err := render(b, f.Children, at); err != nil {
			return err
		}
	}
	b.WriteString(" }")
	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// substitute replaces tokens in a single pass, longest token first, so that
// "$ID" never clobbers "$IDS" and inserted text is never re-scanned.
func substitute(doc string, subs map[string]string) string {
	if len(subs) == 0 {
		return doc
	}
	tokens := make([]string, 0, len(subs))
	for k := range subs {
		if k != "" {
			tokens = append(tokens, k)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})
	pairs := make([]string, 0, len(tokens)*2)
	for _, k := range tokens {
		pairs = append(pairs, k, subs[k])
	}
	return strings.NewReplacer(pairs...).Replace(doc)
}
