package chain

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome describes how a successful resolution ended.
type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeFallback  Outcome = "fallback"
)

// Observer receives engine events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ScopeCompiled(scope string, revision uint64)
	Resolved(scope string, outcome Outcome)
	RequestModified(scope string, link int)
	ResolveFailed(scope string, kind string)
}

type nopObserver struct{}

func (nopObserver) ScopeCompiled(string, uint64) {}
func (nopObserver) Resolved(string, Outcome)     {}
func (nopObserver) RequestModified(string, int)  {}
func (nopObserver) ResolveFailed(string, string) {}

type settings struct {
	isHandler  Predicate
	isInstance Predicate
	pass       bool
	logger     *zerolog.Logger
	observer   Observer
}

// Option configures an Engine.
type Option func(*settings)

// WithHandlerPredicate sets the test for "this is a valid handler".
// The default accepts any non-nil func value.
func WithHandlerPredicate(p Predicate) Option {
	return func(s *settings) {
		if p != nil {
			s.isHandler = p
		}
	}
}

// WithInstancePredicate sets the test for "this is an already rendered
// instance". Values it accepts fail validation with a
// *DirectInstanceReturnError instead of the general error.
func WithInstancePredicate(p Predicate) Option {
	return func(s *settings) {
		if p != nil {
			s.isInstance = p
		}
	}
}

// WithPassModifiedRequest sets the default pass-through policy for scopes
// that do not choose one themselves.
func WithPassModifiedRequest(pass bool) Option {
	return func(s *settings) { s.pass = pass }
}

// WithLogger sets the logger used for diagnostics. The global zerolog logger
// is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = &l }
}

// WithObserver registers an observer for engine events.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// Engine creates scopes and resolves requests for one request/init type pair.
type Engine[Req, Init any] struct {
	settings
}

// New returns an Engine configured by opts.
func New[Req, Init any](opts ...Option) *Engine[Req, Init] {
	s := settings{
		isHandler:  defaultIsHandler,
		isInstance: neverInstance,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Engine[Req, Init]{settings: s}
}

func (e *Engine[Req, Init]) log() *zerolog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return &log.Logger
}

func (e *Engine[Req, Init]) validator() validator {
	return validator{isHandler: e.isHandler, isInstance: e.isInstance}
}

// ResolveFunc is the function form of the call surface.
type ResolveFunc[Req any] func(req Req, opts ...ResolveOption) (Result, error)

// ResolveFunc returns a resolving function bound to ctx. Each call looks the
// enclosing scope up from ctx, as Resolve does.
func (e *Engine[Req, Init]) ResolveFunc(ctx context.Context) ResolveFunc[Req] {
	return func(req Req, opts ...ResolveOption) (Result, error) {
		return e.Resolve(ctx, req, opts...)
	}
}

// Resolve resolves req through the scope carried by ctx. Without a scope
// the fallback is returned when one is given, and ErrNoScope otherwise.
func (e *Engine[Req, Init]) Resolve(ctx context.Context, req Req, opts ...ResolveOption) (Result, error) {
	s, ok := ScopeFromContext[Req, Init](ctx)
	if !ok {
		o := collect(opts)
		if !o.hasFallback {
			e.observer.ResolveFailed("", KindNoScope)
			return nil, ErrNoScope
		}
		e.observer.Resolved("", OutcomeFallback)
		return o.fallback, nil
	}
	return s.ResolveContext(ctx, req, opts...)
}
