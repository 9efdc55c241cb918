package chain

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/allaspectsdev/resolvr/internal/tracing"
)

// ScopeConfig holds what a scope is created with.
type ScopeConfig[Req, Init any] struct {
	// Name identifies the scope in logs, traces and metrics.
	Name  string
	Init  Init
	Chain []Middleware[Req, Init]

	// PassModifiedRequest overrides the engine default when non-nil.
	PassModifiedRequest *bool
}

// Scope is a resolution boundary: one chain, optionally nested under a
// parent scope whose compiled resolver is the implicit last link.
type Scope[Req, Init any] struct {
	id     uuid.UUID
	name   string
	engine *Engine[Req, Init]
	parent *Scope[Req, Init]
	pass   bool

	mu       sync.Mutex // serializes Update and recompilation
	init     Init
	chain    []Middleware[Req, Init]
	revision uint64

	current atomic.Pointer[Compiled[Req, Init]]
}

// Compiled is an immutable snapshot of a scope's compiled chain. Its pointer
// identity changes exactly when the scope recompiles, so callers can use it
// to decide when cached resolutions are stale.
type Compiled[Req, Init any] struct {
	scope    *Scope[Req, Init]
	revision uint64

	// Inputs this snapshot was compiled from.
	init   Init
	chain  []Middleware[Req, Init]
	parent *Compiled[Req, Init]

	resolve Resolver[Req]
}

// NewScope creates a scope under parent (nil for a root scope) and compiles
// it. An invalid chain is reported here as an *InvalidChainError.
func (e *Engine[Req, Init]) NewScope(parent *Scope[Req, Init], cfg ScopeConfig[Req, Init]) (*Scope[Req, Init], error) {
	if err := validateChain(cfg.Chain); err != nil {
		e.observer.ResolveFailed(cfg.Name, KindInvalidChain)
		return nil, err
	}
	pass := e.pass
	if cfg.PassModifiedRequest != nil {
		pass = *cfg.PassModifiedRequest
	}
	s := &Scope[Req, Init]{
		id:     uuid.New(),
		name:   cfg.Name,
		engine: e,
		parent: parent,
		pass:   pass,
		init:   cfg.Init,
		chain:  cfg.Chain,
	}
	if s.name == "" {
		s.name = s.id.String()
	}
	if _, err := s.Compiled(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the scope's unique identifier.
func (s *Scope[Req, Init]) ID() uuid.UUID { return s.id }

// Name returns the scope name.
func (s *Scope[Req, Init]) Name() string { return s.name }

// Parent returns the enclosing scope, or nil for a root scope.
func (s *Scope[Req, Init]) Parent() *Scope[Req, Init] { return s.parent }

// PassModifiedRequest reports the scope's pass-through policy.
func (s *Scope[Req, Init]) PassModifiedRequest() bool { return s.pass }

// Update replaces the scope's initialization value and chain. The scope is
// recompiled on next use, and only if init or the chain slice differ from
// what the current snapshot was built from.
func (s *Scope[Req, Init]) Update(init Init, chain []Middleware[Req, Init]) error {
	if err := validateChain(chain); err != nil {
		s.engine.observer.ResolveFailed(s.name, KindInvalidChain)
		return err
	}
	s.mu.Lock()
	s.init = init
	s.chain = chain
	s.mu.Unlock()
	return nil
}

// Check applies every middleware of chain to init the way a recompile would,
// without installing anything. It reports the error Compiled would return for
// the same inputs.
func (s *Scope[Req, Init]) Check(init Init, chain []Middleware[Req, Init]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Scope: s.name, Value: r}
		}
	}()
	if err := validateChain(chain); err != nil {
		return err
	}
	for i, enh := range enhancersFor(chain, init) {
		if enh == nil {
			return &InvalidChainError{Index: i, Reason: "middleware returned a nil enhancer"}
		}
	}
	return nil
}

// Snapshot returns the most recently compiled snapshot without checking
// whether it is stale.
func (s *Scope[Req, Init]) Snapshot() *Compiled[Req, Init] {
	return s.current.Load()
}

// Compiled returns the scope's current compiled chain, recompiling first if
// init, the chain slice or the parent's compiled snapshot changed.
func (s *Scope[Req, Init]) Compiled() (*Compiled[Req, Init], error) {
	return s.compiled(context.Background())
}

func (s *Scope[Req, Init]) compiled(ctx context.Context) (*Compiled[Req, Init], error) {
	var parent *Compiled[Req, Init]
	if s.parent != nil {
		p, err := s.parent.compiled(ctx)
		if err != nil {
			return nil, err
		}
		parent = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur != nil && cur.parent == parent && sameSlice(cur.chain, s.chain) && identical(any(cur.init), any(s.init)) {
		return cur, nil
	}

	next, err := s.compile(ctx, parent)
	if err != nil {
		return nil, err
	}
	s.current.Store(next)
	return next, nil
}

// compile builds a fresh snapshot. Callers hold s.mu.
func (s *Scope[Req, Init]) compile(ctx context.Context, parent *Compiled[Req, Init]) (_ *Compiled[Req, Init], err error) {
	_, span := tracing.StartCompileSpan(ctx, s.name)
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Scope: s.name, Value: r}
			s.engine.observer.ResolveFailed(s.name, KindPanic)
		}
		tracing.RecordSpanError(span, err)
		span.End()
	}()

	if err := validateChain(s.chain); err != nil {
		s.engine.observer.ResolveFailed(s.name, KindInvalidChain)
		return nil, err
	}

	v := s.engine.validator()
	enhancers := enhancersFor(s.chain, s.init)
	for i, enh := range enhancers {
		if enh == nil {
			s.engine.observer.ResolveFailed(s.name, KindInvalidChain)
			return nil, &InvalidChainError{Index: i, Reason: "middleware returned a nil enhancer"}
		}
		enhancers[i] = guard(enh, linkHooks{
			index:      i,
			pass:       s.pass,
			validator:  v,
			onModified: s.requestModified,
		})
	}

	var terminal Resolver[Req] = unresolved[Req]
	if parent != nil {
		terminal = parent.resolve
	}

	s.revision++
	c := &Compiled[Req, Init]{
		scope:    s,
		revision: s.revision,
		init:     s.init,
		chain:    s.chain,
		parent:   parent,
		resolve:  Compose(enhancers...)(terminal),
	}

	tracing.SetCompileAttributes(span, s.id.String(), c.revision, len(s.chain))
	s.engine.observer.ScopeCompiled(s.name, c.revision)
	s.engine.log().Debug().
		Str("scope", s.name).
		Str("scope_id", s.id.String()).
		Uint64("revision", c.revision).
		Int("links", len(s.chain)).
		Bool("has_parent", parent != nil).
		Msg("scope compiled")
	return c, nil
}

// requestModified emits the non-fatal diagnostic for a dropped request
// modification.
func (s *Scope[Req, Init]) requestModified(link int) {
	s.engine.observer.RequestModified(s.name, link)
	s.engine.log().Warn().
		Str("scope", s.name).
		Str("scope_id", s.id.String()).
		Int("link", link).
		Str("option", "passModifiedRequest").
		Msg("chain link passed a modified request to next; the original request was forwarded instead. " +
			"Set passModifiedRequest on the scope to forward modified requests")
}

// unresolved is the terminal of a root scope.
func unresolved[Req any](Req) (Result, error) { return nil, nil }

// Revision returns the snapshot's compile counter within its scope.
func (c *Compiled[Req, Init]) Revision() uint64 { return c.revision }

// Scope returns the scope the snapshot belongs to.
func (c *Compiled[Req, Init]) Scope() *Scope[Req, Init] { return c.scope }

// Resolver returns the raw compiled resolver, without fallback handling or
// panic recovery.
func (c *Compiled[Req, Init]) Resolver() Resolver[Req] { return c.resolve }
