package debugger

import (
	"math"
	"testing"

	"github.com/tidwall/gjson"
)

func TestValue_Stringify(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"absent", Absent(), "undefined"},
		{"integer", Number(42), "42"},
		{"negative integer", Number(-7), "-7"},
		{"fraction", Number(3.25), "3.25"},
		{"string", String("hello"), "hello"},
		{"function", Function(), "function"},
		{"native", Native(), "native"},
		{"null", Null(), "null"},
		{"unserializable", Structured(map[string]any{"n": math.NaN()}), "illegal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Stringify(); got != tt.want {
				t.Errorf("Stringify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValue_StructuredIsJSON(t *testing.T) {
	v := Structured(map[string]any{
		"name":  "widget",
		"count": 3,
		"tags":  []any{"a", "b"},
	})

	text := v.Stringify()
	if !gjson.Valid(text) {
		t.Fatalf("Stringify() = %q, want valid JSON", text)
	}
	if got := gjson.Get(text, "name").String(); got != "widget" {
		t.Errorf("name = %q, want widget", got)
	}
	if got := gjson.Get(text, "count").Int(); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	if got := gjson.Get(text, "tags.1").String(); got != "b" {
		t.Errorf("tags.1 = %q, want b", got)
	}
	if v.Kind() != KindStructured {
		t.Errorf("Kind() = %v, want structured", v.Kind())
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{10, "10"},
		{1e15, "1000000000000000"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{-42, "-42"},
		{1 << 53, "9.007199254740992e+15"},
		{1 << 63, "9.223372036854776e+18"},
		{-(1 << 63), "-9.223372036854776e+18"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
