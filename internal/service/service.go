// Package service assembles the configured scope tree and exposes it for
// resolution.
package service

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/resolvr/internal/cache"
	"github.com/allaspectsdev/resolvr/internal/chain"
	"github.com/allaspectsdev/resolvr/internal/config"
	"github.com/allaspectsdev/resolvr/internal/format"
	"github.com/allaspectsdev/resolvr/internal/metrics"
	"github.com/allaspectsdev/resolvr/internal/plugin"
)

// ErrUnknownScope is returned when a resolution names a scope that is not
// configured.
var ErrUnknownScope = errors.New("unknown scope")

// Engine is the engine type the service builds scopes on.
type Engine = chain.Engine[string, *plugin.Env]

// Scope is a configured scope.
type Scope = chain.Scope[string, *plugin.Env]

// scopeState is what a scope was last built from. Reload reuses the env and
// chain slices when their config is unchanged, so the scope keeps its
// compiled snapshot.
type scopeState struct {
	cfg   config.ScopeConfig
	scope *Scope
	env   *plugin.Env
	chain []plugin.Middleware
}

// Service owns one engine and the scope tree built from config.
type Service struct {
	registry  *plugin.Registry
	collector *metrics.Collector
	logger    zerolog.Logger

	mu      sync.RWMutex
	cfg     *config.Config
	engine  *Engine
	formats *format.Catalog
	memo    *cache.Memo
	scopes  map[string]*scopeState
	order   []string
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry sets the plugin registry. The default is plugin.Default().
func WithRegistry(r *plugin.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

// WithLogger sets the logger. The default is the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds the engine, format catalog, memo and scope tree from cfg.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = plugin.Default()
	}
	if s.collector == nil {
		s.collector = metrics.NewCollector()
	}

	formats, err := buildCatalog(cfg.Formats)
	if err != nil {
		return nil, err
	}
	memo, err := newMemo(cfg.Cache, s.collector)
	if err != nil {
		return nil, err
	}
	engine := s.newEngine(cfg.Engine)
	scopes, order, err := s.buildScopes(engine, cfg.Scopes, formats, nil)
	if err != nil {
		return nil, err
	}

	s.cfg = cfg
	s.engine = engine
	s.formats = formats
	s.memo = memo
	s.scopes = scopes
	s.order = order

	s.logger.Info().
		Int("scopes", len(order)).
		Int("formats", len(formats.Names())).
		Bool("cache", memo != nil).
		Msg("scope tree built")
	return s, nil
}

func (s *Service) newEngine(ec config.EngineConfig) *Engine {
	return chain.New[string, *plugin.Env](
		chain.WithHandlerPredicate(format.IsHandler),
		chain.WithInstancePredicate(format.IsInstance),
		chain.WithPassModifiedRequest(ec.PassModifiedRequest),
		chain.WithObserver(s.collector),
		chain.WithLogger(s.logger),
	)
}

func newMemo(cc config.CacheConfig, rec cache.Recorder) (*cache.Memo, error) {
	if !cc.Enabled {
		return nil, nil
	}
	return cache.New(cc.Size, time.Duration(cc.TTLSeconds)*time.Second, rec)
}

// buildCatalog returns the built-in formats plus the configured ones.
func buildCatalog(formats map[string]config.FormatConfig) (*format.Catalog, error) {
	c := format.NewCatalog()
	for _, name := range slices.Sorted(maps.Keys(formats)) {
		fc := formats[name]
		h, err := format.Affix(name, fc.Prefix, fc.Suffix, fc.Case)
		if err != nil {
			return nil, err
		}
		if err := c.Add(h); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// buildScopes creates a scope per config entry, parents first. Entries in
// prev whose config is unchanged donate their env and chain.
func (s *Service) buildScopes(engine *Engine, cfgs []config.ScopeConfig, formats *format.Catalog, prev map[string]*scopeState) (map[string]*scopeState, []string, error) {
	scopes := make(map[string]*scopeState, len(cfgs))
	order := make([]string, 0, len(cfgs))
	for _, sc := range config.Order(cfgs) {
		st, err := s.prepare(sc, formats, prev[sc.Name])
		if err != nil {
			return nil, nil, err
		}
		var parent *Scope
		if sc.Parent != "" {
			parent = scopes[sc.Parent].scope
		}
		st.scope, err = engine.NewScope(parent, chain.ScopeConfig[string, *plugin.Env]{
			Name:                sc.Name,
			Init:                st.env,
			Chain:               st.chain,
			PassModifiedRequest: sc.PassModifiedRequest,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("scope %s: %w", sc.Name, err)
		}
		scopes[sc.Name] = st
		order = append(order, sc.Name)
	}
	return scopes, order, nil
}

// prepare builds the env and chain for sc, reusing prev's where the config
// that produced them is unchanged.
func (s *Service) prepare(sc config.ScopeConfig, formats *format.Catalog, prev *scopeState) (*scopeState, error) {
	st := &scopeState{cfg: sc}
	if prev != nil && slices.Equal(prev.cfg.Tags, sc.Tags) {
		st.env = prev.env
	} else {
		st.env = &plugin.Env{Scope: sc.Name, Tags: slices.Clone(sc.Tags)}
	}
	if prev != nil && reflect.DeepEqual(prev.cfg.Middleware, sc.Middleware) {
		st.chain = prev.chain
		return st, nil
	}
	mws, err := s.registry.Build(sc.Middleware, formats)
	if err != nil {
		return nil, fmt.Errorf("scope %s: %w", sc.Name, err)
	}
	st.chain = mws
	return st, nil
}

// Reload applies cfg. When the scope topology and engine settings are
// unchanged, scopes are updated in place and only scopes whose env, chain or
// parent changed recompile. Otherwise the tree is rebuilt. Memoized
// resolutions of recompiled scopes are purged. On error the service keeps
// its previous state.
func (s *Service) Reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	formats := s.formats
	formatsChanged := !reflect.DeepEqual(s.cfg.Formats, cfg.Formats)
	if formatsChanged {
		var err error
		if formats, err = buildCatalog(cfg.Formats); err != nil {
			return err
		}
	}
	prev := s.scopes
	if formatsChanged {
		// Chains may hold handlers from the old catalog.
		prev = nil
	}

	memo := s.memo
	if !reflect.DeepEqual(s.cfg.Cache, cfg.Cache) {
		var err error
		if memo, err = newMemo(cfg.Cache, s.collector); err != nil {
			return err
		}
	}

	if s.cfg.Engine != cfg.Engine || !sameTopology(s.cfg.Scopes, cfg.Scopes) {
		engine := s.newEngine(cfg.Engine)
		scopes, order, err := s.buildScopes(engine, cfg.Scopes, formats, prev)
		if err != nil {
			return err
		}
		s.engine, s.scopes, s.order = engine, scopes, order
		s.formats, s.cfg, s.memo = formats, cfg, memo
		if memo != nil {
			memo.Purge("")
		}
		s.logger.Info().Int("scopes", len(order)).Msg("scope tree rebuilt")
		return nil
	}

	// Validate every scope before touching any of them.
	next := make(map[string]*scopeState, len(cfg.Scopes))
	for _, sc := range cfg.Scopes {
		st, err := s.prepare(sc, formats, prev[sc.Name])
		if err != nil {
			return err
		}
		st.scope = s.scopes[sc.Name].scope
		if err := st.scope.Check(st.env, st.chain); err != nil {
			return fmt.Errorf("scope %s: %w", sc.Name, err)
		}
		next[sc.Name] = st
	}

	before := make(map[string]any, len(next))
	for name, st := range next {
		before[name] = st.scope.Snapshot()
	}
	for _, name := range s.order {
		st := next[name]
		if err := st.scope.Update(st.env, st.chain); err != nil {
			return fmt.Errorf("scope %s: %w", name, err)
		}
	}

	var recompiled []string
	for _, name := range s.order {
		c, err := next[name].scope.Compiled()
		if err != nil {
			s.rollback()
			return fmt.Errorf("scope %s: %w", name, err)
		}
		if any(c) != before[name] {
			recompiled = append(recompiled, name)
			if memo != nil {
				memo.Purge(name)
			}
		}
	}
	s.scopes, s.formats, s.cfg, s.memo = next, formats, cfg, memo

	s.logger.Info().
		Strs("recompiled", recompiled).
		Int("scopes", len(s.order)).
		Msg("scope tree reloaded")
	return nil
}

// rollback reinstalls the env and chain every scope was last built from.
// Callers hold s.mu.
func (s *Service) rollback() {
	for _, name := range s.order {
		st := s.scopes[name]
		if err := st.scope.Update(st.env, st.chain); err != nil {
			s.logger.Error().Err(err).Str("scope", name).Msg("restoring scope after failed reload")
		}
	}
}

// sameTopology reports whether a and b declare the same scopes with the same
// parents and pass-through overrides.
func sameTopology(a, b []config.ScopeConfig) bool {
	if len(a) != len(b) {
		return false
	}
	type shape struct {
		parent string
		pass   *bool
	}
	index := make(map[string]shape, len(a))
	for _, sc := range a {
		index[sc.Name] = shape{sc.Parent, sc.PassModifiedRequest}
	}
	for _, sc := range b {
		old, ok := index[sc.Name]
		if !ok || old.parent != sc.Parent {
			return false
		}
		if (old.pass == nil) != (sc.PassModifiedRequest == nil) {
			return false
		}
		if old.pass != nil && *old.pass != *sc.PassModifiedRequest {
			return false
		}
	}
	return true
}

// ScopeInfo describes a configured scope.
type ScopeInfo struct {
	Name       string   `json:"name"`
	ID         string   `json:"id"`
	Parent     string   `json:"parent,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Middleware []string `json:"middleware"`
	Revision   uint64   `json:"revision"`
	PassThru   bool     `json:"pass_modified_request"`
}

// Scopes lists the configured scopes, parents first.
func (s *Service) Scopes() []ScopeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ScopeInfo, 0, len(s.order))
	for _, name := range s.order {
		st := s.scopes[name]
		info := ScopeInfo{
			Name:     name,
			ID:       st.scope.ID().String(),
			Parent:   st.cfg.Parent,
			Tags:     st.cfg.Tags,
			PassThru: st.scope.PassModifiedRequest(),
		}
		for _, mc := range st.cfg.Middleware {
			info.Middleware = append(info.Middleware, mc.Name)
		}
		if c := st.scope.Snapshot(); c != nil {
			info.Revision = c.Revision()
		}
		infos = append(infos, info)
	}
	return infos
}

// Scope returns the scope named name.
func (s *Service) Scope(name string) (*Scope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.scopes[name]
	if !ok {
		return nil, false
	}
	return st.scope, true
}

// Formats returns the format catalog.
func (s *Service) Formats() *format.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.formats
}

// Collector returns the metrics collector.
func (s *Service) Collector() *metrics.Collector { return s.collector }

// CacheStats returns the memo counters, or false when caching is disabled.
func (s *Service) CacheStats() (cache.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.memo == nil {
		return cache.Stats{}, false
	}
	return s.memo.Stats(), true
}

// Memo returns the resolution memo, or nil when caching is disabled.
func (s *Service) Memo() *cache.Memo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memo
}
