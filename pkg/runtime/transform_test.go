package runtime

import (
	"reflect"
	"testing"

	"github.com/toolmint/toolmint/pkg/formula"
	"github.com/toolmint/toolmint/pkg/schema"
)

func TestApplyTransform(t *testing.T) {
	cache := formula.NewCache()
	cases := []struct {
		name  string
		cfg   schema.TransformConfig
		input any
		want  any
	}{
		{"uppercase", schema.TransformConfig{Op: "uppercase"}, "hello", "HELLO"},
		{"lowercase", schema.TransformConfig{Op: "lowercase"}, "HeLLo", "hello"},
		{"title", schema.TransformConfig{Op: "title"}, "weekend brunch menu", "Weekend Brunch Menu"},
		{"trim", schema.TransformConfig{Op: "trim"}, "  padded \n", "padded"},
		{"round default precision", schema.TransformConfig{Op: "round"}, 2.6, 3.0},
		{"round precision 2", schema.TransformConfig{Op: "round", Precision: 2}, 3.14159, 3.14},
		{"floor precision 1", schema.TransformConfig{Op: "floor", Precision: 1}, 2.78, 2.7},
		{"ceil", schema.TransformConfig{Op: "ceil"}, 2.01, 3.0},
		{"round numeric string", schema.TransformConfig{Op: "round"}, "2.4", 2.0},
		{
			"map with index",
			schema.TransformConfig{Op: "map", Expression: "item + index"},
			[]any{10.0, 20.0, 30.0},
			[]any{10.0, 21.0, 32.0},
		},
		{
			"filter",
			schema.TransformConfig{Op: "filter", Expression: "item % 2 == 0"},
			[]any{1.0, 2.0, 3.0, 4.0},
			[]any{2.0, 4.0},
		},
		{
			"filter to empty",
			schema.TransformConfig{Op: "filter", Expression: "item > 100"},
			[]any{1.0, 2.0},
			[]any{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := applyTransform(&tc.cfg, tc.input, cache)
			if err != nil {
				t.Fatalf("applyTransform: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApplyTransformErrors(t *testing.T) {
	cache := formula.NewCache()
	cases := []struct {
		name  string
		cfg   schema.TransformConfig
		input any
	}{
		{"round non-numeric", schema.TransformConfig{Op: "round"}, "not a number"},
		{"map non-list", schema.TransformConfig{Op: "map", Expression: "item"}, "scalar"},
		{"map bad expression", schema.TransformConfig{Op: "map", Expression: "item +"}, []any{1.0}},
		{"unknown op", schema.TransformConfig{Op: "reverse"}, "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := applyTransform(&tc.cfg, tc.input, cache); err == nil {
				t.Error("expected error")
			}
		})
	}
}
