// Package chain resolves requests to handlers through ordered lists of
// middleware.
//
// A Middleware receives the scope's initialization value and returns an
// Enhancer, which wraps the rest of the chain (next) into a Resolver. The
// first middleware is the outermost wrapper and sees each request first.
// A link answers with a handler, or with nil, false or Absent to mean that
// it has none.
//
// Scopes nest. A child scope's compiled chain ends in its parent's compiled
// chain, so requests no child link answers fall through to the parent. A
// scope recompiles lazily, and only when its init value, its chain slice or
// its parent's compiled snapshot change. The *Compiled pointer is that
// snapshot's identity.
//
// Every link is guarded: the continuation it receives may be called any
// number of times while the link runs, fails with ErrDeferredContinuation
// after it returns, and by default forwards the original request even when
// the link passes a different one (see WithPassModifiedRequest).
package chain
