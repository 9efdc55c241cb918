package chain

import "reflect"

// Predicate classifies a result. Predicates are supplied by the integration
// layer so the engine stays independent of any rendering technology.
type Predicate func(r Result) bool

// unwrapper is implemented by handler adapters such as *Bound.
type unwrapper interface {
	unwrapHandler() Result
}

type validator struct {
	isHandler  Predicate
	isInstance Predicate
}

// defaultIsHandler accepts any non-nil function value.
func defaultIsHandler(r Result) bool {
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Func && !v.IsNil()
}

func neverInstance(Result) bool { return false }

// check validates the answer of link. No-handler sentinels and values
// accepted by the handler predicate pass; everything else is an error.
func (v validator) check(link int, r Result) error {
	if IsNoHandler(r) {
		return nil
	}
	inner := r
	for {
		u, ok := inner.(unwrapper)
		if !ok {
			break
		}
		inner = u.unwrapHandler()
	}
	if v.isHandler(inner) {
		return nil
	}
	if v.isInstance(inner) {
		return &DirectInstanceReturnError{Link: link, Value: r}
	}
	return &InvalidHandlerReturnError{Link: link, Value: r}
}
