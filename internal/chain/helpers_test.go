package chain

import (
	"sync"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Test handlers and middleware
// ---------------------------------------------------------------------------

type testHandler struct{ name string }

// testInstance stands in for an already rendered handler.
type testInstance struct{ of string }

var (
	boldHandler   = &testHandler{name: "bold"}
	italicHandler = &testHandler{name: "italic"}
	plainHandler  = &testHandler{name: "plain"}
)

func isTestHandler(r Result) bool {
	h, ok := r.(*testHandler)
	return ok && h != nil
}

func isTestInstance(r Result) bool {
	_, ok := r.(testInstance)
	return ok
}

func newTestEngine(opts ...Option) *Engine[string, struct{}] {
	base := []Option{
		WithHandlerPredicate(isTestHandler),
		WithInstancePredicate(isTestInstance),
		WithLogger(zerolog.Nop()),
	}
	return New[string, struct{}](append(base, opts...)...)
}

type mw = Middleware[string, struct{}]

// enhancerMW lifts a plain enhancer into a middleware that ignores init.
func enhancerMW(e Enhancer[string]) mw {
	return func(struct{}) Enhancer[string] { return e }
}

// match answers h for request and defers everything else.
func match(request string, h Result) mw {
	return enhancerMW(func(next Resolver[string]) Resolver[string] {
		return func(req string) (Result, error) {
			if req == request {
				return h, nil
			}
			return next(req)
		}
	})
}

// answer always answers r.
func answer(r Result) mw {
	return enhancerMW(func(Resolver[string]) Resolver[string] {
		return func(string) (Result, error) { return r, nil }
	})
}

// deferring always calls next with the request it received.
func deferring() mw {
	return enhancerMW(func(next Resolver[string]) Resolver[string] {
		return func(req string) (Result, error) { return next(req) }
	})
}

// observe records the request the rest of the chain sees, then declines.
func observe(seen *[]string) mw {
	return enhancerMW(func(next Resolver[string]) Resolver[string] {
		return func(req string) (Result, error) {
			*seen = append(*seen, req)
			return next(req)
		}
	})
}

// ---------------------------------------------------------------------------
// Recording observer
// ---------------------------------------------------------------------------

type recordingObserver struct {
	mu       sync.Mutex
	compiled []uint64
	outcomes []Outcome
	modified []int
	failures []string
}

func (o *recordingObserver) ScopeCompiled(_ string, revision uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compiled = append(o.compiled, revision)
}

func (o *recordingObserver) Resolved(_ string, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) RequestModified(_ string, link int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modified = append(o.modified, link)
}

func (o *recordingObserver) ResolveFailed(_ string, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, kind)
}
