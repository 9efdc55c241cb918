// Package format is the handler domain resolvr ships with: named text
// formatters that a chain resolves a style request to.
package format

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler renders text in one style. Chain links answer with a *Handler;
// rendering happens later, with the caller's props.
type Handler struct {
	Name  string
	Apply func(text string) string
}

// Output is text a Handler has already rendered. Returning one from a chain
// link is the pre-built instance mistake.
type Output string

// Props are the inputs a handler is rendered with.
type Props struct {
	Text string
	Tags []string
}

// Render applies h to p.
func (h *Handler) Render(p Props) Output {
	out := h.Apply(p.Text)
	for _, tag := range p.Tags {
		out += " #" + tag
	}
	return Output(out)
}

func (h *Handler) String() string { return "format.Handler(" + h.Name + ")" }

// IsHandler reports whether v is a usable *Handler.
func IsHandler(v any) bool {
	h, ok := v.(*Handler)
	return ok && h != nil && h.Apply != nil
}

// IsInstance reports whether v is already rendered output.
func IsInstance(v any) bool {
	switch v.(type) {
	case Output, *Output:
		return true
	}
	return false
}

// Renderer renders a resolved handler with props. It is the render step of
// the declarative call form.
func Renderer(handler any, p Props) (Output, error) {
	h, ok := handler.(*Handler)
	if !ok || h == nil {
		return "", fmt.Errorf("format: cannot render %T", handler)
	}
	return h.Render(p), nil
}

// Combine returns a handler applying hs in order, innermost first.
func Combine(hs ...*Handler) *Handler {
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.Name
	}
	return &Handler{
		Name: strings.Join(names, "+"),
		Apply: func(text string) string {
			for _, h := range hs {
				text = h.Apply(text)
			}
			return text
		},
	}
}

func wrap(marker string) func(string) string {
	return func(text string) string { return marker + text + marker }
}

// Catalog is a set of named handlers.
type Catalog struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewCatalog returns a catalog holding the built-in handlers.
func NewCatalog() *Catalog {
	c := &Catalog{handlers: make(map[string]*Handler)}
	for _, h := range []*Handler{
		{Name: "plain", Apply: func(s string) string { return s }},
		{Name: "bold", Apply: wrap("**")},
		{Name: "italic", Apply: wrap("_")},
		{Name: "code", Apply: wrap("`")},
		{Name: "strike", Apply: wrap("~~")},
		{Name: "upper", Apply: strings.ToUpper},
		{Name: "lower", Apply: strings.ToLower},
	} {
		c.handlers[h.Name] = h
	}
	return c
}

// Add registers h, replacing any handler with the same name.
func (c *Catalog) Add(h *Handler) error {
	if !IsHandler(h) || h.Name == "" {
		return fmt.Errorf("format: handler must have a name and an Apply func")
	}
	c.mu.Lock()
	c.handlers[h.Name] = h
	c.mu.Unlock()
	return nil
}

// Lookup returns the handler registered under name.
func (c *Catalog) Lookup(name string) (*Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Names returns the registered handler names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Affix returns a handler that applies the case transform ("", "upper" or
// "lower") and then surrounds the text with prefix and suffix.
func Affix(name, prefix, suffix, caseName string) (*Handler, error) {
	var transform func(string) string
	switch strings.ToLower(caseName) {
	case "":
		transform = func(s string) string { return s }
	case "upper":
		transform = strings.ToUpper
	case "lower":
		transform = strings.ToLower
	default:
		return nil, fmt.Errorf("format %s: unknown case %q", name, caseName)
	}
	return &Handler{
		Name:  name,
		Apply: func(text string) string { return prefix + transform(text) + suffix },
	}, nil
}
