package chain

import "context"

// scopeKey is the context key under which the enclosing scope is stored.
type scopeKey struct{}

// WithScope returns a context whose enclosing scope is s.
func WithScope[Req, Init any](ctx context.Context, s *Scope[Req, Init]) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the enclosing scope stored in ctx, if any.
func ScopeFromContext[Req, Init any](ctx context.Context) (*Scope[Req, Init], bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope[Req, Init])
	return s, ok && s != nil
}
