package jsonld

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// DeepCopy copies a document tree made of *Object, []any, map[string]any and scalars.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return (*Object)(nil)
		}
		ret := NewObject()
		for k, val := range t.Iter() {
			ret.Set(k, DeepCopy(val))
		}
		return ret
	case []any:
		ret := make([]any, len(t))
		for i, val := range t {
			ret[i] = DeepCopy(val)
		}
		return ret
	case map[string]any:
		ret := make(map[string]any, len(t))
		for k, val := range t {
			ret[k] = DeepCopy(val)
		}
		return ret
	default:
		return v
	}
}

// Clone deep-copies an Object.
func (o *Object) Clone() *Object {
	return DeepCopy(o).(*Object)
}

// Equal reports whether two document trees are the same,
// including the key order of objects.
//
// Numbers are compared by their textual representation,
// so json.Number("1") and int(1) are equal.
func Equal(a, b any) bool {
	switch ta := a.(type) {
	case *Object:
		tb, ok := b.(*Object)
		if !ok {
			return false
		}
		if ta.Len() != tb.Len() {
			return false
		}
		bkeys := tb.Keys()
		for i, k := range ta.Keys() {
			if bkeys[i] != k {
				return false
			}
			va, _ := ta.Get(k)
			vb, _ := tb.Get(k)
			if !Equal(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}

	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (string, bool) {
	switch t := v.(type) {
	case json.Number:
		return t.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t), true
	case float32, float64:
		return fmt.Sprint(t), true
	}
	return "", false
}
