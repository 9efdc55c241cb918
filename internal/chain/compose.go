package chain

// Result is whatever a chain link answers with: a handler, or one of the
// no-handler sentinels (nil, false, Absent).
type Result = any

// Resolver maps a request to a handler result.
type Resolver[Req any] func(req Req) (Result, error)

// Enhancer is one chain link. It wraps the continuation next into a new
// Resolver and delegates to next when it declines to answer.
type Enhancer[Req any] func(next Resolver[Req]) Resolver[Req]

// Middleware yields an Enhancer for a scope's initialization value.
type Middleware[Req, Init any] func(init Init) Enhancer[Req]

type absent struct{}

func (absent) String() string { return "chain.Absent" }

// Absent is an explicit "no handler here" answer, distinct from nil and false
// only in spelling.
var Absent Result = absent{}

// IsNoHandler reports whether r is one of the no-handler sentinels.
func IsNoHandler(r Result) bool {
	switch v := r.(type) {
	case nil:
		return true
	case bool:
		return !v
	case absent:
		return true
	}
	return false
}

// Compose folds enhancers into a single Enhancer equivalent to
// e1(e2(...en(t))). The first enhancer is outermost: it runs first and sees
// the request first. With no enhancers the terminal is returned unchanged.
func Compose[Req any](enhancers ...Enhancer[Req]) Enhancer[Req] {
	return func(terminal Resolver[Req]) Resolver[Req] {
		r := terminal
		for i := len(enhancers) - 1; i >= 0; i-- { // apply in reverse so enhancers[0] is outermost
			r = enhancers[i](r)
		}
		return r
	}
}

// Apply compiles chain for init into one Enhancer. It is pure: the result
// depends only on (chain, init). Guards and validation are layered on by Scope.
func Apply[Req, Init any](chain []Middleware[Req, Init], init Init) Enhancer[Req] {
	return Compose(enhancersFor(chain, init)...)
}

func enhancersFor[Req, Init any](chain []Middleware[Req, Init], init Init) []Enhancer[Req] {
	enhancers := make([]Enhancer[Req], len(chain))
	for i, mw := range chain {
		enhancers[i] = mw(init)
	}
	return enhancers
}

// validateChain checks that every entry of chain is callable.
func validateChain[Req, Init any](chain []Middleware[Req, Init]) error {
	for i, mw := range chain {
		if mw == nil {
			return &InvalidChainError{Index: i, Reason: "middleware is nil"}
		}
	}
	return nil
}
