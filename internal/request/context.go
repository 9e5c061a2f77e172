// Package request describes one frozen logical operation: the terminal
// resource, the hops navigated to reach it, its ids, payload and action.
package request

import (
	"encoding/json"
	"fmt"
	"strings"

	"shopbridge/internal/gid"
)

// Hop is one parent resource navigated before the terminal resource.
type Hop struct {
	Resource string
	ID       string
	// Terminal marks a hop that carries an id owned by the terminal resource
	// (for example the "123" in a "123/cancel" action path). Its id is held
	// in Resource.
	Terminal bool
}

// PlainRecorder is implemented by typed payload wrappers.
type PlainRecorder interface {
	PlainRecord() map[string]any
}

// Params is the input to New.
type Params struct {
	Resource string
	Mutation bool
	Payload  any
	Chain    []Hop
	IDs      []string
	Suffix   string
}

// Context is immutable once built.
type Context struct {
	resource string
	mutation bool
	payload  any
	chain    []Hop
	ids      []string
	suffix   string
}

// New freezes s into a Context. Slices are copied.
func New(s Params) *Context {
	return &Context{
		resource: s.Resource,
		mutation: s.Mutation,
		payload:  s.Payload,
		chain:    append([]Hop(nil), s.Chain...),
		ids:      append([]string(nil), s.IDs...),
		suffix:   strings.Trim(s.Suffix, "/"),
	}
}

func (c *Context) Resource() string { return c.resource }
func (c *Context) IsMutation() bool { return c.mutation }
func (c *Context) Payload() any     { return c.payload }
func (c *Context) Suffix() string   { return c.suffix }

// Chain returns the parent hops, outermost first.
func (c *Context) Chain() []Hop { return append([]Hop(nil), c.chain...) }

// IDs returns the positional ids.
func (c *Context) IDs() []string { return append([]string(nil), c.ids...) }

// HasSuffix reports whether the appended action path equals action.
func (c *Context) HasSuffix(action string) bool {
	return c.suffix == action
}

// ResourceID resolves the terminal resource id: a scalar payload, then a
// payload "id" field, then the first positional id, then a terminal hop.
// It returns "" when nothing resolves.
func (c *Context) ResourceID() string {
	switch p := c.plainPayload().(type) {
	case string:
		if p != "" {
			return p
		}
	case int, int64, float64, json.Number:
		return gid.Stringify(p)
	case map[string]any:
		if id, ok := p["id"]; ok && id != nil {
			if s := gid.Stringify(id); s != "" {
				return s
			}
		}
	}
	if len(c.ids) > 0 && c.ids[0] != "" {
		return c.ids[0]
	}
	if len(c.chain) > 0 && c.chain[0].Terminal {
		return c.chain[0].Resource
	}
	return ""
}

// GlobalResourceID is ResourceID encoded as a global id of resourceType.
func (c *Context) GlobalResourceID(resourceType string) string {
	id := c.ResourceID()
	if id == "" {
		return ""
	}
	return gid.ToGlobalID(id, resourceType)
}

// FindIDInChain returns the id recorded for resource in the parent chain.
func (c *Context) FindIDInChain(resource string) (string, error) {
	for _, h := range c.chain {
		if !h.Terminal && h.Resource == resource {
			return h.ID, nil
		}
	}
	return "", &MissingChainResourceError{Resource: c.resource, Parent: resource}
}

// ChainContains reports whether resource appears in the parent chain.
func (c *Context) ChainContains(resource string) bool {
	_, err := c.FindIDInChain(resource)
	return err == nil
}

// PayloadSection returns payload[key] when present, else the whole payload.
func (c *Context) PayloadSection(key string) any {
	p := c.plainPayload()
	if key == "" {
		return p
	}
	if m, ok := p.(map[string]any); ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return p
}

// Record is PayloadSection narrowed to a record. It returns an empty map
// when the section is not a record.
func (c *Context) Record(key string) map[string]any {
	if m, ok := c.PayloadSection(key).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func (c *Context) plainPayload() any {
	if pr, ok := c.payload.(PlainRecorder); ok {
		return pr.PlainRecord()
	}
	return c.payload
}

// MissingChainResourceError is returned when an operation needs a parent
// resource that was not navigated through.
type MissingChainResourceError struct {
	Resource string
	Parent   string
}

func (e *MissingChainResourceError) Error() string {
	return fmt.Sprintf("%s requires navigating through %s first, e.g. %s(id).%s", e.Resource, e.Parent, e.Parent, e.Resource)
}
