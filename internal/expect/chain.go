package expect

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/dop251/goja"
)

// assertion reports whether v satisfies the call and describes the positive
// expectation for the failure message.
type assertion func(vm *goja.Runtime, v goja.Value, args []goja.Value) (bool, string)

var assertions = map[string]assertion{
	"equal":       assertEqual,
	"eql":         assertDeepEqual,
	"above":       compareNum("be above", func(got, want float64) bool { return got > want }),
	"greaterThan": compareNum("be greater than", func(got, want float64) bool { return got > want }),
	"below":       compareNum("be below", func(got, want float64) bool { return got < want }),
	"lessThan":    compareNum("be less than", func(got, want float64) bool { return got < want }),
	"least":       compareNum("be at least", func(got, want float64) bool { return got >= want }),
	"most":        compareNum("be at most", func(got, want float64) bool { return got <= want }),
	"within":      assertWithin,
	"include":     assertInclude,
	"contain":     assertInclude,
	"a":           assertType,
	"an":          assertType,
	"property":    assertProperty,
	"length":      assertLength,
	"lengthOf":    assertLength,
	"exist":       assertExist,
	"oneOf":       assertOneOf,
}

// chainWords are chai's readability words; they all lead back to the same
// chain.
var chainWords = []string{"to", "be", "been", "is", "that", "which", "and", "has", "have", "with", "at", "of", "same", "does"}

// newChain returns expect(v): a chai-style object whose language words
// resolve to itself and whose "not" flips every assertion.
func newChain(vm *goja.Runtime, v goja.Value) *goja.Object {
	pos := buildChain(vm, v, false)
	neg := buildChain(vm, v, true)
	pos.Set("not", neg)
	neg.Set("not", pos)
	return pos
}

func buildChain(vm *goja.Runtime, v goja.Value, negated bool) *goja.Object {
	obj := vm.NewObject()
	for _, w := range chainWords {
		obj.Set(w, obj)
	}
	deep := vm.NewObject()
	deep.Set("equal", bind(vm, obj, v, negated, assertDeepEqual))
	obj.Set("deep", deep)
	for name, fn := range assertions {
		obj.Set(name, bind(vm, obj, v, negated, fn))
	}
	return obj
}

// bind turns fn into a JS method that throws on failure and returns chain so
// assertions can be joined with "and".
func bind(vm *goja.Runtime, chain *goja.Object, v goja.Value, negated bool, fn assertion) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		ok, want := fn(vm, v, call.Arguments)
		if negated {
			ok = !ok
			want = "not " + want
		}
		if !ok {
			panic(vm.NewGoError(fmt.Errorf("expected %s to %s", describe(v), want)))
		}
		return chain
	}
}

func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if _, ok := v.(*goja.Object); ok {
		return fmt.Sprintf("%v", v.Export())
	}
	if s, ok := v.Export().(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return v.String()
}

func arg(args []goja.Value, i int) goja.Value {
	if i < len(args) {
		return args[i]
	}
	return goja.Undefined()
}

func assertEqual(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	want := arg(args, 0)
	return v.StrictEquals(want), "equal " + describe(want)
}

func assertDeepEqual(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	want := arg(args, 0)
	return reflect.DeepEqual(normalize(v.Export()), normalize(want.Export())), "deep equal " + describe(want)
}

// normalize folds JS numbers to float64 so 1 and 1.0 compare equal.
func normalize(x any) any {
	switch t := x.(type) {
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return x
}

func compareNum(verb string, cmp func(got, want float64) bool) assertion {
	return func(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
		want := arg(args, 0).ToFloat()
		got := v.ToFloat()
		return !math.IsNaN(got) && cmp(got, want), fmt.Sprintf("%s %v", verb, want)
	}
}

func assertWithin(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	lo, hi := arg(args, 0).ToFloat(), arg(args, 1).ToFloat()
	got := v.ToFloat()
	return got >= lo && got <= hi, fmt.Sprintf("be within %v..%v", lo, hi)
}

func assertInclude(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	target := arg(args, 0)
	want := "include " + describe(target)
	if s, ok := v.Export().(string); ok {
		return strings.Contains(s, target.String()), want
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return false, want
	}
	if obj.ClassName() == "Array" {
		n := obj.Get("length").ToInteger()
		for i := range n {
			if obj.Get(fmt.Sprint(i)).StrictEquals(target) {
				return true, want
			}
		}
		return false, want
	}
	p := obj.Get(target.String())
	return p != nil && !goja.IsUndefined(p), want
}

func assertType(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	kind := strings.ToLower(arg(args, 0).String())
	want := "be a " + kind
	if v == nil || goja.IsUndefined(v) {
		return kind == "undefined", want
	}
	if goja.IsNull(v) {
		return kind == "null", want
	}
	switch kind {
	case "string":
		_, ok := v.Export().(string)
		return ok, want
	case "number":
		switch v.Export().(type) {
		case int64, float64:
			return true, want
		}
		return false, want
	case "boolean":
		_, ok := v.Export().(bool)
		return ok, want
	case "array":
		obj, ok := v.(*goja.Object)
		return ok && obj.ClassName() == "Array", want
	case "object":
		obj, ok := v.(*goja.Object)
		return ok && obj.ClassName() != "Array", want
	}
	return false, want
}

func assertProperty(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	name := arg(args, 0).String()
	want := "have property " + name
	obj, ok := v.(*goja.Object)
	if !ok {
		return false, want
	}
	p := obj.Get(name)
	if p == nil || goja.IsUndefined(p) {
		return false, want
	}
	if len(args) > 1 {
		return p.StrictEquals(args[1]), fmt.Sprintf("have property %s = %s", name, describe(args[1]))
	}
	return true, want
}

func assertLength(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	want := arg(args, 0).ToInteger()
	return lengthOf(v) == want, fmt.Sprintf("have length %d", want)
}

func lengthOf(v goja.Value) int64 {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return -1
	}
	if s, ok := v.Export().(string); ok {
		return int64(len([]rune(s)))
	}
	if obj, ok := v.(*goja.Object); ok {
		if l := obj.Get("length"); l != nil && !goja.IsUndefined(l) {
			return l.ToInteger()
		}
	}
	return -1
}

func assertExist(_ *goja.Runtime, v goja.Value, _ []goja.Value) (bool, string) {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v), "exist"
}

func assertOneOf(_ *goja.Runtime, v goja.Value, args []goja.Value) (bool, string) {
	list, ok := arg(args, 0).(*goja.Object)
	if !ok || list.ClassName() != "Array" {
		return false, "be one of a list"
	}
	n := list.Get("length").ToInteger()
	for i := range n {
		if list.Get(fmt.Sprint(i)).StrictEquals(v) {
			return true, fmt.Sprintf("be one of %v", list.Export())
		}
	}
	return false, fmt.Sprintf("be one of %v", list.Export())
}
