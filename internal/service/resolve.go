package service

import (
	"context"
	"fmt"
	"time"

	"github.com/allaspectsdev/resolvr/internal/chain"
	"github.com/allaspectsdev/resolvr/internal/format"
)

// Request is one resolve-and-render call.
type Request struct {
	Scope   string
	Request string
	Text    string

	// Fallback names a format rendered when no handler is found.
	Fallback string
}

// Response is the result of a Request.
type Response struct {
	Scope    string        `json:"scope"`
	Request  string        `json:"request"`
	Output   format.Output `json:"output"`
	Rendered bool          `json:"rendered"`
	Revision uint64        `json:"revision"`
}

// Resolve resolves req.Request through the named scope and renders the
// handler with req.Text. Answers are memoized per compiled snapshot when the
// cache is enabled. Rendered is false when nothing handled the request and
// no fallback was given.
func (s *Service) Resolve(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	s.mu.RLock()
	st, ok := s.scopes[req.Scope]
	memo := s.memo
	formats := s.formats
	s.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownScope, req.Scope)
	}

	var fallback chain.Result
	if req.Fallback != "" {
		h, ok := formats.Lookup(req.Fallback)
		if !ok {
			return Response{}, fmt.Errorf("unknown fallback format %q", req.Fallback)
		}
		fallback = h
	}

	c, err := st.scope.Compiled()
	if err != nil {
		return Response{}, err
	}

	var resolve chain.ResolveFunc[string] = func(r string, opts ...chain.ResolveOption) (chain.Result, error) {
		if memo == nil {
			return c.ResolveContext(ctx, r, opts...)
		}
		// A miss resolves with the caller's options so the outcome is
		// recorded as it would be without the memo. The raw answer is what
		// gets memoized.
		return memo.Resolve(req.Scope, c, r, func() (chain.Result, error) {
			var answer chain.Result
			withAnswer := append(opts[:len(opts):len(opts)], chain.CaptureAnswer(&answer))
			if _, err := c.ResolveContext(ctx, r, withAnswer...); err != nil {
				return nil, err
			}
			return answer, nil
		}, opts...)
	}

	out, rendered, err := chain.Render(resolve, chain.Element[string, format.Props]{
		Request:  req.Request,
		Props:    format.Props{Text: req.Text},
		Fallback: fallback,
	}, format.Renderer)
	s.collector.ObserveResolve(req.Scope, time.Since(start))
	if err != nil {
		return Response{}, err
	}

	s.logger.Debug().
		Str("scope", req.Scope).
		Str("request", req.Request).
		Bool("rendered", rendered).
		Uint64("revision", c.Revision()).
		Dur("latency", time.Since(start)).
		Msg("resolved")

	return Response{
		Scope:    req.Scope,
		Request:  req.Request,
		Output:   out,
		Rendered: rendered,
		Revision: c.Revision(),
	}, nil
}
