// Package internal holds helpers shared across courier packages.
package internal

import "reflect"

// IsTypedNil reports whether v is nil or an interface holding a nil value of
// a nilable kind.
func IsTypedNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
