package chain

import (
	"reflect"
	"testing"
)

func TestCompose_EmptyReturnsTerminal(t *testing.T) {
	terminal := func(req string) (Result, error) { return &testHandler{name: "t:" + req}, nil }

	r := Compose[string]()(terminal)
	got, err := r("x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := got.(*testHandler); h.name != "t:x" {
		t.Errorf("got %q, want %q", h.name, "t:x")
	}
}

// TestCompose_OutermostFirst verifies that the first enhancer sees the
// request first and the last one sits next to the terminal.
func TestCompose_OutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) Enhancer[string] {
		return func(next Resolver[string]) Resolver[string] {
			return func(req string) (Result, error) {
				order = append(order, name)
				return next(req)
			}
		}
	}
	terminal := func(string) (Result, error) {
		order = append(order, "terminal")
		return nil, nil
	}

	if _, err := Compose(tag("first"), tag("second"), tag("third"))(terminal)("req"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first", "second", "third", "terminal"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order: got %v, want %v", order, want)
	}
}

func TestApply_PassesInitToEveryMiddleware(t *testing.T) {
	var inits []int
	record := func(init int) Enhancer[string] {
		inits = append(inits, init)
		return func(next Resolver[string]) Resolver[string] { return next }
	}

	Apply([]Middleware[string, int]{record, record}, 7)

	if !reflect.DeepEqual(inits, []int{7, 7}) {
		t.Errorf("inits: got %v, want [7 7]", inits)
	}
}

func TestApply_ConcreteScenario(t *testing.T) {
	chain := []mw{match("bold", boldHandler), match("italic", italicHandler), answer(plainHandler)}
	r := Apply(chain, struct{}{})(unresolved[string])

	tests := []struct {
		req  string
		want *testHandler
	}{
		{"bold", boldHandler},
		{"italic", italicHandler},
		{"other", plainHandler},
	}
	for _, tt := range tests {
		got, err := r(tt.req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.req, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.req, got, tt.want)
		}
	}
}

func TestIsNoHandler(t *testing.T) {
	tests := []struct {
		r    Result
		want bool
	}{
		{nil, true},
		{false, true},
		{Absent, true},
		{true, false},
		{"", false},
		{0, false},
		{boldHandler, false},
	}
	for _, tt := range tests {
		if got := IsNoHandler(tt.r); got != tt.want {
			t.Errorf("IsNoHandler(%#v): got %v, want %v", tt.r, got, tt.want)
		}
	}
}
