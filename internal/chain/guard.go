package chain

// linkHooks carries what a guarded link needs from its scope.
type linkHooks struct {
	index      int
	pass       bool
	validator  validator
	onModified func(link int)
}

// guard wraps enh so that every invocation of the resulting Resolver
//   - hands enh a fresh continuation that may be called any number of times
//     while the invocation runs and fails with ErrDeferredContinuation after,
//   - applies the pass-through policy to each continuation call,
//   - validates the answer before the continuation is sealed.
//
// enh is applied per invocation so each invocation owns its own seal.
func guard[Req any](enh Enhancer[Req], h linkHooks) Enhancer[Req] {
	return func(next Resolver[Req]) Resolver[Req] {
		return func(req Req) (Result, error) {
			sealed := false
			defer func() { sealed = true }()

			cont := func(r Req) (Result, error) {
				if sealed {
					return nil, ErrDeferredContinuation
				}
				if !h.pass && !identical(any(r), any(req)) {
					if h.onModified != nil {
						h.onModified(h.index)
					}
					r = req
				}
				return next(r)
			}

			resolve := enh(cont)
			if resolve == nil {
				return nil, &InvalidChainError{Index: h.index, Reason: "enhancer returned a nil resolver"}
			}
			res, err := resolve(req)
			if err != nil {
				return nil, err
			}
			if err := h.validator.check(h.index, res); err != nil {
				return nil, err
			}
			return res, nil
		}
	}
}
