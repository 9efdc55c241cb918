package chain

// Renderer turns a resolved handler and its inputs into output.
type Renderer[P, Out any] func(handler Result, props P) (Out, error)

// Element is the declarative form of a resolution: a request plus the
// inputs the resolved handler is rendered with.
type Element[Req, P any] struct {
	Request Req
	Props   P

	// Fallback, when non-nil, is rendered if no handler is found.
	Fallback Result
}

// Bound is a handler with inputs bound into it by a chain link. Render
// applies the binding to the element's props before rendering the inner
// handler, so the binding runs as part of the handler's own invocation.
type Bound[P any] struct {
	Handler Result
	bind    func(P) P
}

// Bind returns h with bind applied to its props at render time.
func Bind[P any](h Result, bind func(P) P) *Bound[P] {
	return &Bound[P]{Handler: h, bind: bind}
}

func (b *Bound[P]) unwrapHandler() Result { return b.Handler }

// Props applies the binding to p.
func (b *Bound[P]) Props(p P) P {
	if b.bind == nil {
		return p
	}
	return b.bind(p)
}

// Render resolves el.Request through resolve and renders the handler with
// el.Props. rendered is false, with a zero Out, when the chain yields no
// handler and el has no fallback.
func Render[Req, P, Out any](resolve ResolveFunc[Req], el Element[Req, P], render Renderer[P, Out]) (out Out, rendered bool, err error) {
	var opts []ResolveOption
	if el.Fallback != nil {
		opts = append(opts, WithFallback(el.Fallback))
	}
	h, err := resolve(el.Request, opts...)
	if err != nil || h == nil {
		return out, false, err
	}

	props := el.Props
	h, props = unbind(h, props)

	out, err = render(h, props)
	if err != nil {
		return out, false, err
	}
	return out, true, nil
}

// unbind peels Bound layers off h, applying outer bindings first.
func unbind[P any](h Result, props P) (Result, P) {
	for {
		b, ok := h.(*Bound[P])
		if !ok {
			return h, props
		}
		props = b.Props(props)
		h = b.Handler
	}
}
