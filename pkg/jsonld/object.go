package jsonld

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Object is a JSON object which keeps its keys in the order they were set.
//
// Resources and grouped datasets are walked in document order,
// so plain Go maps, which do not remember key order, cannot represent them.
type Object struct {
	keys []string
	m    map[string]any
}

type Pair struct {
	Key   string
	Value any
}

func P(key string, value any) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject creates a new Object with the given initial key-value pairs.
//
// The keys will be ordered in the order they were added.
func NewObject(initial ...Pair) *Object {
	o := &Object{keys: []string{}, m: map[string]any{}}
	for _, p := range initial {
		o.Set(p.Key, p.Value)
	}
	return o
}

// Set a value for the key.
//
// A new key is appended at the end; an existing key keeps its position.
func (o *Object) Set(k string, v any) {
	if o.m == nil {
		o.m = map[string]any{}
	}
	if _, ok := o.m[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.m[k] = v
}

func (o *Object) Get(k string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.m[k]
	return v, ok
}

func (o *Object) Has(k string) bool {
	_, ok := o.Get(k)
	return ok
}

// GetString returns the value for k when it is a string.
func (o *Object) GetString(k string) (string, bool) {
	v, ok := o.Get(k)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetObject returns the value for k when it is an *Object.
func (o *Object) GetObject(k string) (*Object, bool) {
	v, ok := o.Get(k)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok
}

// Pop removes k and returns the value which was there.
func (o *Object) Pop(k string) (any, bool) {
	v, ok := o.Get(k)
	if ok {
		o.Delete(k)
	}
	return v, ok
}

func (o *Object) Delete(k string) {
	if o == nil {
		return
	}
	if _, ok := o.m[k]; !ok {
		return
	}
	delete(o.m, k)
	for i, key := range o.keys {
		if key == k {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	ret := make([]string, len(o.keys))
	copy(ret, o.keys)
	return ret
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Iter yields key-value pairs in order.
//
// Setting existing keys while iterating is safe.
// Adding or removing keys is not.
func (o *Object) Iter() func(yield func(k string, v any) bool) {
	return func(yield func(k string, v any) bool) {
		if o == nil {
			return
		}
		for _, k := range o.keys {
			if !yield(k, o.m[k]) {
				break
			}
		}
	}
}

// ToMap returns a shallow copy of the object as an unordered map.
func (o *Object) ToMap() map[string]any {
	ret := map[string]any{}
	for k, v := range o.Iter() {
		ret[k] = v
	}
	return ret
}

func (o *Object) String() string {
	buf, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("<jsonld.Object: %s>", err)
	}
	return string(buf)
}

func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	buf := new(bytes.Buffer)
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i != 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(o.m[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("json object is expected, but got %s", TypeName(v))
	}
	*o = *obj
	return nil
}

// TypeName describes the JSON type of v, for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "str"
	case bool:
		return "bool"
	case json.Number:
		if _, err := v.(json.Number).Int64(); err == nil {
			return "int"
		}
		return "float"
	case float64, float32:
		return "float"
	case int, int64, int32, uint, uint64:
		return "int"
	case *Object:
		return "dict"
	case []any:
		return "list"
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
	}
}
