package format

import (
	"reflect"
	"testing"
)

func TestCatalog_BuiltinsRender(t *testing.T) {
	c := NewCatalog()
	tests := []struct {
		name string
		want Output
	}{
		{"plain", "hi"},
		{"bold", "**hi**"},
		{"italic", "_hi_"},
		{"code", "`hi`"},
		{"strike", "~~hi~~"},
		{"upper", "HI"},
		{"lower", "hi"},
	}
	for _, tt := range tests {
		h, ok := c.Lookup(tt.name)
		if !ok {
			t.Fatalf("Lookup(%q): not found", tt.name)
		}
		if got := h.Render(Props{Text: "hi"}); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestHandler_RenderAppendsTags(t *testing.T) {
	h, _ := NewCatalog().Lookup("bold")
	got := h.Render(Props{Text: "x", Tags: []string{"a", "b"}})
	if got != "**x** #a #b" {
		t.Errorf("got %q", got)
	}
}

func TestCombine(t *testing.T) {
	c := NewCatalog()
	b, _ := c.Lookup("bold")
	i, _ := c.Lookup("italic")
	h := Combine(b, i)
	if h.Name != "bold+italic" {
		t.Errorf("Name: got %q", h.Name)
	}
	if got := h.Render(Props{Text: "x"}); got != "_**x**_" {
		t.Errorf("got %q", got)
	}
}

func TestPredicates(t *testing.T) {
	h, _ := NewCatalog().Lookup("plain")
	out := Output("done")

	if !IsHandler(h) {
		t.Error("IsHandler(*Handler) = false")
	}
	if IsHandler((*Handler)(nil)) {
		t.Error("IsHandler(nil *Handler) = true")
	}
	if IsHandler(&Handler{Name: "broken"}) {
		t.Error("IsHandler without Apply = true")
	}
	if IsHandler("bold") {
		t.Error("IsHandler(string) = true")
	}
	if !IsInstance(out) || !IsInstance(&out) {
		t.Error("IsInstance(Output) = false")
	}
	if IsInstance(h) {
		t.Error("IsInstance(*Handler) = true")
	}
}

func TestRenderer(t *testing.T) {
	h, _ := NewCatalog().Lookup("upper")
	got, err := Renderer(h, Props{Text: "abc"})
	if err != nil || got != "ABC" {
		t.Fatalf("Renderer: got %q, %v", got, err)
	}
	if _, err := Renderer("upper", Props{}); err == nil {
		t.Error("expected error rendering a non-handler")
	}
}

func TestCatalog_AddAndNames(t *testing.T) {
	c := NewCatalog()
	if err := c.Add(&Handler{Name: "shout", Apply: func(s string) string { return s + "!" }}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add(&Handler{Name: "", Apply: func(s string) string { return s }}); err == nil {
		t.Error("expected error adding unnamed handler")
	}
	want := []string{"bold", "code", "italic", "lower", "plain", "shout", "strike", "upper"}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names: got %v, want %v", got, want)
	}
}

func TestAffix(t *testing.T) {
	tests := []struct {
		prefix, suffix, caseName string
		want                     string
	}{
		{"", "!", "upper", "HELLO!"},
		{"> ", "", "", "> Hello"},
		{"[", "]", "lower", "[hello]"},
	}
	for _, tt := range tests {
		h, err := Affix("custom", tt.prefix, tt.suffix, tt.caseName)
		if err != nil {
			t.Fatalf("Affix: %v", err)
		}
		if got := h.Apply("Hello"); got != tt.want {
			t.Errorf("Affix(%q, %q, %q): got %q, want %q", tt.prefix, tt.suffix, tt.caseName, got, tt.want)
		}
	}

	if _, err := Affix("bad", "", "", "title"); err == nil {
		t.Error("expected error for unknown case")
	}
}
