package chain

import (
	"context"
	"fmt"
	"reflect"

	"github.com/allaspectsdev/resolvr/internal/tracing"
)

type resolveOptions struct {
	fallback    Result
	hasFallback bool
	answer      *Result
}

// ResolveOption configures a single resolution.
type ResolveOption func(*resolveOptions)

// WithFallback supplies the handler used when the chain and every ancestor
// chain decline, or when there is no scope at all.
func WithFallback(h Result) ResolveOption {
	return func(o *resolveOptions) {
		o.fallback = h
		o.hasFallback = true
	}
}

// CaptureAnswer stores the chain's own answer in dst before any fallback is
// applied. dst receives nil when nothing handled the request.
func CaptureAnswer(dst *Result) ResolveOption {
	return func(o *resolveOptions) { o.answer = dst }
}

func collect(opts []ResolveOption) resolveOptions {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Fallback applies the fallback from opts to a raw chain answer. No-handler
// sentinels become the fallback when one is given, and nil otherwise.
func Fallback(r Result, opts ...ResolveOption) Result {
	if !IsNoHandler(r) {
		return r
	}
	if o := collect(opts); o.hasFallback {
		return o.fallback
	}
	return nil
}

// Resolve resolves req through the scope's current compiled chain.
func (s *Scope[Req, Init]) Resolve(req Req, opts ...ResolveOption) (Result, error) {
	return s.ResolveContext(context.Background(), req, opts...)
}

// ResolveContext is Resolve with a context for tracing.
func (s *Scope[Req, Init]) ResolveContext(ctx context.Context, req Req, opts ...ResolveOption) (Result, error) {
	c, err := s.compiled(ctx)
	if err != nil {
		return nil, err
	}
	return c.ResolveContext(ctx, req, opts...)
}

// Resolve runs req through this snapshot. A nil result means no handler was
// found and no fallback was given.
func (c *Compiled[Req, Init]) Resolve(req Req, opts ...ResolveOption) (Result, error) {
	return c.ResolveContext(context.Background(), req, opts...)
}

// ResolveContext is Resolve with a context for tracing.
func (c *Compiled[Req, Init]) ResolveContext(ctx context.Context, req Req, opts ...ResolveOption) (res Result, err error) {
	s := c.scope
	ctx, span := tracing.StartResolveSpan(ctx, s.name, c.revision)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &PanicError{Scope: s.name, Value: r}
		}
		if err != nil {
			kind := Kind(err)
			tracing.RecordError(ctx, err)
			s.engine.observer.ResolveFailed(s.name, kind)
			s.engine.log().Error().Err(err).
				Str("scope", s.name).
				Str("kind", kind).
				Msg("resolution failed")
		}
	}()

	raw, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	o := collect(opts)
	outcome := OutcomeHandled
	res = raw
	if IsNoHandler(raw) {
		outcome = OutcomeUnhandled
		res = nil
		if o.hasFallback {
			outcome = OutcomeFallback
			res = o.fallback
		}
	}
	if o.answer != nil {
		*o.answer = raw
		if IsNoHandler(raw) {
			*o.answer = nil
		}
	}
	tracing.SetResolveOutcome(ctx, string(outcome))
	s.engine.observer.Resolved(s.name, outcome)
	return res, nil
}

// ResolveAs resolves req and asserts the handler to H. ok is false when no
// handler (and no fallback) was found.
func ResolveAs[H, Req any](resolve ResolveFunc[Req], req Req, opts ...ResolveOption) (h H, ok bool, err error) {
	r, err := resolve(req, opts...)
	if err != nil || r == nil {
		return h, false, err
	}
	h, ok = r.(H)
	if !ok {
		return h, false, fmt.Errorf("resolvr: resolved %T, want %v", r, reflect.TypeFor[H]())
	}
	return h, true, nil
}
