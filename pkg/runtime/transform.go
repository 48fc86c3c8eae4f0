package runtime

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/toolmint/toolmint/pkg/formula"
	"github.com/toolmint/toolmint/pkg/schema"
)

// applyTransform runs a pure data operation over one context value.
// No I/O, no external effects; the same input always yields the same
// output.
func applyTransform(cfg *schema.TransformConfig, input any, formulas *formula.Cache) (any, error) {
	switch cfg.Op {
	case "uppercase", "lowercase", "title", "trim":
		s, err := cast.ToStringE(input)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", cfg.Op, err)
		}
		switch cfg.Op {
		case "uppercase":
			return strings.ToUpper(s), nil
		case "lowercase":
			return strings.ToLower(s), nil
		case "title":
			return titleCase(s), nil
		default:
			return strings.TrimSpace(s), nil
		}

	case "round", "floor", "ceil":
		f, err := cast.ToFloat64E(input)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", cfg.Op, err)
		}
		scale := math.Pow(10, float64(cfg.Precision))
		switch cfg.Op {
		case "round":
			return math.Round(f*scale) / scale, nil
		case "floor":
			return math.Floor(f*scale) / scale, nil
		default:
			return math.Ceil(f*scale) / scale, nil
		}

	case "map", "filter":
		list, ok := input.([]any)
		if !ok {
			return nil, fmt.Errorf("transform %s: input is %T, want a list", cfg.Op, input)
		}
		out := make([]any, 0, len(list))
		for i, item := range list {
			bindings := map[string]any{"item": item, "index": float64(i)}
			v, err := formulas.Evaluate(cfg.Expression, bindings)
			if err != nil {
				return nil, fmt.Errorf("transform %s element %d: %w", cfg.Op, i, err)
			}
			if cfg.Op == "map" {
				out = append(out, v)
			} else if formula.Truthy(v) {
				out = append(out, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown transform op %q", cfg.Op)
}

// titleCase upper-cases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
