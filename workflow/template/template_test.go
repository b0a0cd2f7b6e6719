package template

import (
	"reflect"
	"testing"
)

func TestRender_SubstitutesDottedPaths(t *testing.T) {
	inputs := map[string]any{
		"user": map[string]any{"name": "ada", "id": 7.0},
	}
	got := Render("hello {{user.name}} (#{{user.id}})", inputs)
	if got != "hello ada (#7)" {
		t.Errorf("got %q", got)
	}
}

func TestRender_SinglePlaceholderKeepsNativeType(t *testing.T) {
	inputs := map[string]any{"n": 6.0, "flag": true, "obj": map[string]any{"k": "v"}}

	if got := Render("{{n}}", inputs); got != 6.0 {
		t.Errorf("expected native 6.0, got %v (%T)", got, got)
	}
	if got := Render("{{flag}}", inputs); got != true {
		t.Errorf("expected native bool, got %v", got)
	}
	if got, ok := Render("{{obj}}", inputs).(map[string]any); !ok || got["k"] != "v" {
		t.Errorf("expected native map, got %v", got)
	}
}

func TestRender_UnresolvedStaysLiteral(t *testing.T) {
	got := Render("v={{missing.path}}", map[string]any{})
	if got != "v={{missing.path}}" {
		t.Errorf("unresolved placeholder must stay literal, got %q", got)
	}
}

func TestRender_RecursesObjectsAndArrays(t *testing.T) {
	inputs := map[string]any{"x": 1.0}
	value := map[string]any{
		"a": "{{x}}",
		"b": []any{"{{x}}", "literal", 2.0},
		"c": map[string]any{"nested": "x={{x}}"},
	}
	got, ok := Render(value, inputs).(map[string]any)
	if !ok {
		t.Fatal("expected a map")
	}
	if got["a"] != 1.0 {
		t.Errorf("a: got %v", got["a"])
	}
	arr := got["b"].([]any)
	if arr[0] != 1.0 || arr[1] != "literal" || arr[2] != 2.0 {
		t.Errorf("b: got %v", arr)
	}
	if got["c"].(map[string]any)["nested"] != "x=1" {
		t.Errorf("c: got %v", got["c"])
	}
}

func TestRender_ScalarsPassThrough(t *testing.T) {
	inputs := map[string]any{}
	for _, v := range []any{42.0, true, nil} {
		if got := Render(v, inputs); !reflect.DeepEqual(got, v) {
			t.Errorf("scalar %v changed to %v", v, got)
		}
	}
}

func TestRender_ArrayIndexing(t *testing.T) {
	inputs := map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}
	if got := Render("{{items[1].name}}", inputs); got != "second" {
		t.Errorf("got %v", got)
	}
	if got := Render("{{items[9].name}}", inputs); got != "{{items[9].name}}" {
		t.Errorf("out-of-range index must stay literal, got %v", got)
	}
}

// Spec invariant 8: render is idempotent once fully resolved.
func TestRender_Idempotent(t *testing.T) {
	inputs := map[string]any{"a": "x", "n": 3.0}
	cases := []string{
		"{{a}} and {{n}}",
		"{{a}} and {{missing}}",
		"no placeholders",
	}
	for _, s := range cases {
		once := Render(s, inputs)
		twice := Render(once, inputs)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("render(%q) not idempotent: %v != %v", s, once, twice)
		}
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{nil, ""},
		{6.0, "6"},
		{6.5, "6.5"},
		{true, "true"},
	}
	for _, c := range cases {
		if got := Stringify(c.in); got != c.want {
			t.Errorf("Stringify(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
