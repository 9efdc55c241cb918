package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/resolvr/internal/chain"
	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/format"
	"github.com/allaspectsdev/resolvr/internal/metrics"
	"github.com/allaspectsdev/resolvr/internal/plugin"
)

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := New(cfg, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func resolve(t *testing.T, svc *Service, scope, request, text string) Response {
	t.Helper()
	resp, err := svc.Resolve(context.Background(), Request{Scope: scope, Request: request, Text: text})
	if err != nil {
		t.Fatalf("Resolve(%s, %s): %v", scope, request, err)
	}
	return resp
}

func revisions(svc *Service) map[string]uint64 {
	out := make(map[string]uint64)
	for _, info := range svc.Scopes() {
		out[info.Name] = info.Revision
	}
	return out
}

func TestResolve_DefaultTree(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())

	tests := []struct {
		scope, request string
		want           format.Output
	}{
		{"root", "bold", "**hi**"},
		{"root", "italic", "_hi_"},
		{"root", "strike", "~~hi~~"},
		{"root", "shout", "HI!"},
		{"root", "anything", "hi"},
		{"docs", "code:go", "`hi`"},
		{"docs", "emphasis", "_hi_"},
		{"docs", "bold", "**hi**"},
		{"docs", "note", "hi #docs"},
	}
	for _, tt := range tests {
		resp := resolve(t, svc, tt.scope, tt.request, "hi")
		if !resp.Rendered {
			t.Errorf("%s/%s: not rendered", tt.scope, tt.request)
			continue
		}
		if resp.Output != tt.want {
			t.Errorf("%s/%s: got %q, want %q", tt.scope, tt.request, resp.Output, tt.want)
		}
	}
}

func TestResolve_UnknownScope(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())

	_, err := svc.Resolve(context.Background(), Request{Scope: "nope", Request: "bold"})
	if !errors.Is(err, ErrUnknownScope) {
		t.Fatalf("expected ErrUnknownScope, got %v", err)
	}
}

func TestResolve_Fallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scopes = []config.ScopeConfig{{
		Name: "strict",
		Middleware: []config.MiddlewareConfig{
			{Name: "match", Params: map[string]any{"request": "bold", "format": "bold"}},
		},
	}}
	svc := newTestService(t, cfg)

	resp := resolve(t, svc, "strict", "missing", "hi")
	if resp.Rendered || resp.Output != "" {
		t.Errorf("expected nothing rendered, got %+v", resp)
	}

	resp, err := svc.Resolve(context.Background(), Request{Scope: "strict", Request: "missing", Text: "hi", Fallback: "code"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resp.Rendered || resp.Output != "`hi`" {
		t.Errorf("fallback: got %+v", resp)
	}

	_, err = svc.Resolve(context.Background(), Request{Scope: "strict", Request: "missing", Fallback: "nope"})
	if err == nil {
		t.Error("expected error for unknown fallback format")
	}
}

func TestResolve_Memoized(t *testing.T) {
	collector := metrics.NewCollector()
	svc, err := New(config.DefaultConfig(), WithLogger(zerolog.Nop()), WithCollector(collector))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resolve(t, svc, "root", "bold", "a")
	resolve(t, svc, "root", "bold", "b")

	stats, ok := svc.CacheStats()
	if !ok {
		t.Fatal("cache should be enabled by default")
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("cache stats: got %+v, want 1 hit and 1 miss", stats)
	}
	if got := collector.Outcomes("root", chain.OutcomeHandled); got != 1 {
		t.Errorf("handled outcomes: got %d, want 1", got)
	}
	if collector.Stats().CacheHits != 1 {
		t.Errorf("collector cache hits: got %d, want 1", collector.Stats().CacheHits)
	}
}

func TestResolve_MemoizedFallbackOutcome(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scopes = []config.ScopeConfig{{
		Name: "strict",
		Middleware: []config.MiddlewareConfig{
			{Name: "match", Params: map[string]any{"request": "bold", "format": "bold"}},
		},
	}}
	collector := metrics.NewCollector()
	svc, err := New(cfg, WithLogger(zerolog.Nop()), WithCollector(collector))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := svc.Resolve(context.Background(), Request{Scope: "strict", Request: "missing", Text: "hi", Fallback: "code"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Output != "`hi`" {
		t.Errorf("fallback: got %q", resp.Output)
	}
	if got := collector.Outcomes("strict", chain.OutcomeFallback); got != 1 {
		t.Errorf("fallback outcomes: got %d, want 1", got)
	}
	if got := collector.Outcomes("strict", chain.OutcomeUnhandled); got != 0 {
		t.Errorf("unhandled outcomes: got %d, want 0", got)
	}

	// The memoized entry is the chain's own answer, not the fallback.
	resp = resolve(t, svc, "strict", "missing", "hi")
	if resp.Rendered {
		t.Errorf("memoized fallback leaked into a call without one: %+v", resp)
	}
	if stats, _ := svc.CacheStats(); stats.Hits != 1 {
		t.Errorf("cache hits: got %d, want 1", stats.Hits)
	}
}

func TestResolve_CacheDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	svc := newTestService(t, cfg)

	resolve(t, svc, "root", "bold", "a")
	if _, ok := svc.CacheStats(); ok {
		t.Error("CacheStats should report disabled cache")
	}
	if svc.Memo() != nil {
		t.Error("Memo should be nil")
	}
}

func TestNew_InvalidMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scopes[0].Middleware = append(cfg.Scopes[0].Middleware, config.MiddlewareConfig{
		Name: "match", Params: map[string]any{"request": "x", "format": "nope"},
	})

	_, err := New(cfg, WithLogger(zerolog.Nop()))
	if !errors.Is(err, chain.ErrInvalidChain) {
		t.Fatalf("expected ErrInvalidChain, got %v", err)
	}
	var ice *chain.InvalidChainError
	if !errors.As(err, &ice) || ice.Index != 4 {
		t.Errorf("expected index 4, got %v", err)
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Formats["bad"] = config.FormatConfig{Case: "title"}

	if _, err := New(cfg, WithLogger(zerolog.Nop())); err == nil {
		t.Fatal("expected error for unknown case")
	}
}

func TestScopes(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())

	infos := svc.Scopes()
	if len(infos) != 2 {
		t.Fatalf("expected 2 scopes, got %d", len(infos))
	}
	if infos[0].Name != "root" || infos[1].Name != "docs" {
		t.Errorf("order: got %s, %s", infos[0].Name, infos[1].Name)
	}
	if infos[1].Parent != "root" {
		t.Errorf("docs parent: got %q", infos[1].Parent)
	}
	want := []string{"prefix", "match", "tag"}
	if !slices.Equal(infos[1].Middleware, want) {
		t.Errorf("docs middleware: got %v, want %v", infos[1].Middleware, want)
	}
	if infos[0].ID == "" || infos[0].ID == infos[1].ID {
		t.Errorf("scope IDs should be set and distinct: %q %q", infos[0].ID, infos[1].ID)
	}
	if _, ok := svc.Scope("docs"); !ok {
		t.Error("Scope(docs) not found")
	}
	if _, ok := svc.Scope("nope"); ok {
		t.Error("Scope(nope) should not be found")
	}
}

func TestScopes_ParentDeclaredLater(t *testing.T) {
	cfg := config.DefaultConfig()
	slices.Reverse(cfg.Scopes)
	svc := newTestService(t, cfg)

	if got := resolve(t, svc, "docs", "bold", "x").Output; got != "**x**" {
		t.Errorf("got %q", got)
	}
}

func TestReload_Unchanged(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	resolve(t, svc, "docs", "bold", "x")
	before := revisions(svc)

	if err := svc.Reload(config.DefaultConfig()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if after := revisions(svc); after["root"] != before["root"] || after["docs"] != before["docs"] {
		t.Errorf("revisions changed: before %v, after %v", before, after)
	}
	if stats, _ := svc.CacheStats(); stats.Size != 1 {
		t.Errorf("memo should be kept, size %d", stats.Size)
	}
}

func TestReload_ChildOnly(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	resolve(t, svc, "root", "bold", "x")
	before := revisions(svc)

	cfg := config.DefaultConfig()
	cfg.Scopes[1].Middleware = append(cfg.Scopes[1].Middleware, config.MiddlewareConfig{
		Name: "match", Params: map[string]any{"request": "loud", "format": "shout"},
	})
	if err := svc.Reload(cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after := revisions(svc)
	if after["root"] != before["root"] {
		t.Errorf("root should not recompile: %d -> %d", before["root"], after["root"])
	}
	if after["docs"] != before["docs"]+1 {
		t.Errorf("docs should recompile: %d -> %d", before["docs"], after["docs"])
	}
	if got := resolve(t, svc, "docs", "loud", "x").Output; got != "X!" {
		t.Errorf("new middleware: got %q", got)
	}
	if stats, _ := svc.CacheStats(); stats.Hits != 0 {
		t.Errorf("unexpected hits: %+v", stats)
	}
}

func TestReload_ParentChangeRecompilesChild(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	before := revisions(svc)

	cfg := config.DefaultConfig()
	cfg.Scopes[0].Middleware[0].Params["format"] = "strike"
	if err := svc.Reload(cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after := revisions(svc)
	if after["root"] == before["root"] || after["docs"] == before["docs"] {
		t.Errorf("both scopes should recompile: before %v, after %v", before, after)
	}
	if got := resolve(t, svc, "docs", "bold", "x").Output; got != "~~x~~" {
		t.Errorf("got %q", got)
	}
}

func TestReload_TagsOnly(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	before := revisions(svc)

	cfg := config.DefaultConfig()
	cfg.Scopes[1].Tags = []string{"draft"}
	if err := svc.Reload(cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after := revisions(svc)
	if after["root"] != before["root"] || after["docs"] != before["docs"]+1 {
		t.Errorf("only docs should recompile: before %v, after %v", before, after)
	}
	if got := resolve(t, svc, "docs", "note", "x").Output; got != "x #draft" {
		t.Errorf("got %q", got)
	}
}

func TestReload_PurgesRecompiledScopes(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	resolve(t, svc, "root", "bold", "x")
	resolve(t, svc, "docs", "emphasis", "x")

	cfg := config.DefaultConfig()
	cfg.Scopes[1].Tags = nil
	if err := svc.Reload(cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if stats, _ := svc.CacheStats(); stats.Size != 1 {
		t.Errorf("only the root entry should survive, size %d", stats.Size)
	}
}

func TestReload_Topology(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	oldRoot, _ := svc.Scope("root")

	cfg := config.DefaultConfig()
	cfg.Scopes = append(cfg.Scopes, config.ScopeConfig{
		Name:   "blog",
		Parent: "root",
		Middleware: []config.MiddlewareConfig{
			{Name: "block", Params: map[string]any{"requests": []any{"strike"}}},
		},
	})
	if err := svc.Reload(cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	newRoot, _ := svc.Scope("root")
	if newRoot == oldRoot {
		t.Error("topology change should rebuild the tree")
	}
	if resp := resolve(t, svc, "blog", "strike", "x"); resp.Rendered {
		t.Errorf("blocked request should not render: %+v", resp)
	}
	if got := resolve(t, svc, "blog", "bold", "x").Output; got != "**x**" {
		t.Errorf("got %q", got)
	}
}

func TestReload_FormatsChanged(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())

	cfg := config.DefaultConfig()
	cfg.Formats["shout"] = config.FormatConfig{Prefix: ">> ", Case: "upper"}
	if err := svc.Reload(cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := resolve(t, svc, "root", "shout", "x").Output; got != ">> X" {
		t.Errorf("got %q", got)
	}
}

func TestReload_ErrorKeepsState(t *testing.T) {
	svc := newTestService(t, config.DefaultConfig())
	before := revisions(svc)

	cfg := config.DefaultConfig()
	cfg.Scopes[1].Middleware[0].Name = "nope"
	if err := svc.Reload(cfg); !errors.Is(err, chain.ErrInvalidChain) {
		t.Fatalf("expected ErrInvalidChain, got %v", err)
	}

	if after := revisions(svc); after["docs"] != before["docs"] {
		t.Errorf("docs changed after failed reload: %v -> %v", before, after)
	}
	if got := resolve(t, svc, "docs", "code:x", "y").Output; got != "`y`" {
		t.Errorf("old chain should still resolve, got %q", got)
	}
}

// registryWith returns the built-in registry plus extra.
func registryWith(t *testing.T, extra ...plugin.Plugin) *plugin.Registry {
	t.Helper()
	r := plugin.Default()
	for _, p := range extra {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p.Name(), err)
		}
	}
	return r
}

func TestReload_CompileErrorKeepsState(t *testing.T) {
	broken := plugin.New("broken", "returns a nil enhancer", func(map[string]any, *format.Catalog) (plugin.Middleware, error) {
		return func(*plugin.Env) chain.Enhancer[string] { return nil }, nil
	})
	panicking := plugin.New("panicking", "panics on init", func(map[string]any, *format.Catalog) (plugin.Middleware, error) {
		return func(env *plugin.Env) chain.Enhancer[string] { panic("no init for " + env.Scope) }, nil
	})

	tests := []struct {
		name   string
		plugin string
		check  func(error) bool
	}{
		{"nil enhancer", "broken", func(err error) bool { return errors.Is(err, chain.ErrInvalidChain) }},
		{"panic", "panicking", func(err error) bool {
			var pe *chain.PanicError
			return errors.As(err, &pe)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(config.DefaultConfig(),
				WithLogger(zerolog.Nop()),
				WithRegistry(registryWith(t, broken, panicking)))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			before := revisions(svc)

			cfg := config.DefaultConfig()
			cfg.Scopes[0].Middleware = []config.MiddlewareConfig{{Name: tt.plugin}}
			err = svc.Reload(cfg)
			if err == nil || !tt.check(err) {
				t.Fatalf("Reload: unexpected error %v", err)
			}

			if got := resolve(t, svc, "root", "bold", "hi").Output; got != "**hi**" {
				t.Errorf("root after failed reload: got %q, want %q", got, "**hi**")
			}
			if got := resolve(t, svc, "docs", "code:x", "y").Output; got != "`y`" {
				t.Errorf("docs after failed reload: got %q", got)
			}
			if after := revisions(svc); !maps.Equal(after, before) {
				t.Errorf("revisions changed after failed reload: %v -> %v", before, after)
			}

			// The service still accepts a good config afterwards.
			good := config.DefaultConfig()
			good.Scopes[1].Tags = []string{"docs", "guide"}
			if err := svc.Reload(good); err != nil {
				t.Fatalf("Reload(good): %v", err)
			}
		})
	}
}
