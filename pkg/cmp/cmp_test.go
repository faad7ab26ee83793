package cmp_test

import (
	"testing"

	"github.com/openbraininstitute/entitykit/pkg/cmp"
)

func TestSliceContentEq(t *testing.T) {
	theory := func(a, b []string, expected bool) func(*testing.T) {
		return func(t *testing.T) {
			if actual := cmp.SliceContentEq(a, b); actual != expected {
				t.Errorf("SliceContentEq(%v, %v) = %v, expected %v", a, b, actual, expected)
			}
		}
	}

	t.Run("same order", theory([]string{"a", "b"}, []string{"a", "b"}, true))
	t.Run("other order", theory([]string{"a", "b", "c"}, []string{"c", "b", "a"}, true))
	t.Run("missing element", theory([]string{"a", "b", "c"}, []string{"c", "b", "z"}, false))
	t.Run("multiplicity matters", theory([]string{"a", "c", "c"}, []string{"a", "a", "c"}, false))
	t.Run("length matters", theory([]string{"a"}, []string{"a", "a"}, false))
}

func TestMapEq(t *testing.T) {
	if !cmp.MapEq(map[string]int{"a": 1, "b": 2}, map[string]int{"b": 2, "a": 1}) {
		t.Errorf("same maps should be equal")
	}
	if cmp.MapEq(map[string]int{"a": 1}, map[string]int{"a": 2}) {
		t.Errorf("different values should not be equal")
	}
	if cmp.MapEq(map[string]int{"a": 1}, map[string]int{"b": 1}) {
		t.Errorf("different keys should not be equal")
	}
}
