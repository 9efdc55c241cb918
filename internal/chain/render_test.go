package chain

import (
	"context"
	"errors"
	"testing"
)

func renderTest(h Result, props string) (string, error) {
	th, ok := h.(*testHandler)
	if !ok {
		return "", errors.New("not a test handler")
	}
	return th.name + "(" + props + ")", nil
}

func TestRender(t *testing.T) {
	e := newTestEngine()
	s, _ := e.NewScope(nil, ScopeConfig[string, struct{}]{Chain: []mw{
		match("bold", boldHandler),
		match("loud", Bind(boldHandler, func(p string) string { return p + "!" })),
		match("broken", "oops"),
	}})
	resolve := e.ResolveFunc(WithScope(context.Background(), s))

	tests := []struct {
		name     string
		el       Element[string, string]
		want     string
		rendered bool
		wantErr  bool
	}{
		{"handler", Element[string, string]{Request: "bold", Props: "hi"}, "bold(hi)", true, false},
		{"bound props", Element[string, string]{Request: "loud", Props: "hi"}, "bold(hi!)", true, false},
		{"nothing", Element[string, string]{Request: "none", Props: "hi"}, "", false, false},
		{"fallback", Element[string, string]{Request: "none", Props: "hi", Fallback: plainHandler}, "plain(hi)", true, false},
		{"invalid", Element[string, string]{Request: "broken", Props: "hi"}, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rendered, err := Render(resolve, tt.el, renderTest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if rendered != tt.rendered {
				t.Errorf("rendered: got %v, want %v", rendered, tt.rendered)
			}
			if got != tt.want {
				t.Errorf("output: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NestedBindingsApplyOuterFirst(t *testing.T) {
	inner := Bind(boldHandler, func(p string) string { return p + "-inner" })
	outer := Bind[string](inner, func(p string) string { return p + "-outer" })

	h, props := unbind[string](outer, "p")
	if h != boldHandler {
		t.Errorf("handler: got %v", h)
	}
	if props != "p-outer-inner" {
		t.Errorf("props: got %q", props)
	}
}

func TestRender_NoScope(t *testing.T) {
	e := newTestEngine()
	resolve := e.ResolveFunc(context.Background())

	_, _, err := Render(resolve, Element[string, string]{Request: "x"}, renderTest)
	if !errors.Is(err, ErrNoScope) {
		t.Fatalf("expected ErrNoScope, got %v", err)
	}

	out, rendered, err := Render(resolve, Element[string, string]{Request: "x", Props: "p", Fallback: plainHandler}, renderTest)
	if err != nil || !rendered || out != "plain(p)" {
		t.Errorf("got (%q, %v, %v)", out, rendered, err)
	}
}
