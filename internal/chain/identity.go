package chain

import (
	"reflect"
	"unsafe"
)

// identical reports whether a and b are the same value in the strict sense
// used by the pass-through policy: comparable values compare with ==, slices
// and maps compare by address. Funcs compare by closure, so two closures
// built from one literal are different values. Values that cannot be
// compared either way (structs holding slices, for example) are copied on
// every call in Go, so they are compared structurally.
func identical(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) {
		return false
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		return closure(a) == closure(b)
	}

	if t.Comparable() {
		// Interface fields holding non-comparable values make == panic.
		defer func() {
			if recover() != nil {
				same = reflect.DeepEqual(a, b)
			}
		}()
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// closure returns the data word of an interface holding a func. Func values
// are stored directly in it, so it points at the closure object rather than
// the shared code that reflect.Value.Pointer reports.
func closure(f any) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&f))[1]
}

// sameSlice reports whether a and b are the same slice header, not merely
// equal contents.
func sameSlice[T any](a, b []T) bool {
	return len(a) == len(b) && cap(a) == cap(b) && unsafe.SliceData(a) == unsafe.SliceData(b)
}
