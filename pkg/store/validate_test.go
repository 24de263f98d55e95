package store

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type sample struct {
	Name string `json:"name"`
}

func TestValidate(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *sample

	tests := []struct {
		name    string
		payload map[string]any
		want    bool
	}{
		{name: "nil payload", payload: nil, want: false},
		{name: "empty payload", payload: map[string]any{}, want: false},
		{name: "scalar value", payload: map[string]any{"key": "value"}, want: false},
		{name: "numeric value", payload: map[string]any{"key": 2}, want: false},
		{name: "nil value", payload: map[string]any{"key": nil}, want: false},
		{name: "nil map value", payload: map[string]any{"key": nilMap}, want: false},
		{name: "nil pointer value", payload: map[string]any{"key": nilPtr}, want: false},
		{name: "slice value", payload: map[string]any{"key": []any{map[string]any{}}}, want: false},
		{name: "empty key", payload: map[string]any{"": map[string]any{"a": 1}}, want: false},
		{name: "blank key", payload: map[string]any{"   ": map[string]any{"a": 1}}, want: false},
		{name: "int keyed map", payload: map[string]any{"key": map[int]string{1: "a"}}, want: false},
		{name: "single document", payload: map[string]any{"key1": map[string]any{"doc-1": "value"}}, want: true},
		{name: "nested document", payload: map[string]any{"key1": map[string]any{"doc-1": map[string]any{"a": 1}}}, want: true},
		{name: "empty document", payload: map[string]any{"key1": map[string]any{}}, want: true},
		{name: "typed document", payload: map[string]any{"key1": Document{"a": 1}}, want: true},
		{name: "string map", payload: map[string]any{"key1": map[string]string{"a": "b"}}, want: true},
		{name: "struct", payload: map[string]any{"key1": sample{Name: "x"}}, want: true},
		{name: "struct pointer", payload: map[string]any{"key1": &sample{Name: "x"}}, want: true},
		{
			name: "multiple documents",
			payload: map[string]any{
				"key1": map[string]any{"doc-1": map[string]any{"a": 1}},
				"key2": map[string]any{"doc-2": map[string]any{"b": 1, "c": 2}},
			},
			want: true,
		},
		{
			name:    "one bad value spoils the batch",
			payload: map[string]any{"key1": map[string]any{}, "key2": "scalar"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.payload); got != tt.want {
				t.Fatalf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Property: a payload validates iff it is non-empty, every key has a
// non-blank character and every value is an object.
func TestProperty_ValidateMatchesShapeRules(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	keyGen := gen.OneGenOf(gen.AlphaString(), gen.Const(""), gen.Const("  "), gen.Const("\t"))
	valueGen := gen.IntRange(0, 4).Map(func(kind int) any {
		switch kind {
		case 0:
			return map[string]any{"a": 1}
		case 1:
			return sample{Name: "n"}
		case 2:
			return "scalar"
		case 3:
			return 42
		default:
			return []any{1}
		}
	})

	properties.Property("validate agrees with the shape rules", prop.ForAll(
		func(keys []string, values []any) bool {
			payload := make(map[string]any)
			for i, key := range keys {
				if i < len(values) {
					payload[key] = values[i]
				}
			}

			want := len(payload) > 0
			for key, value := range payload {
				blank := true
				for _, r := range key {
					if r != ' ' && r != '\t' {
						blank = false
					}
				}
				switch value.(type) {
				case map[string]any, sample:
				default:
					want = false
				}
				if blank {
					want = false
				}
			}
			return Validate(payload) == want
		},
		gen.SliceOf(keyGen),
		gen.SliceOf(valueGen),
	))

	properties.TestingRun(t)
}
