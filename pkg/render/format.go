package render

import (
	"fmt"
	"strconv"

	"github.com/spf13/cast"
)

// missingPlaceholder is what a mapped field renders as when the result
// has no value under its key. Missing data never fails a render.
const missingPlaceholder = "—"

// formatValue coerces a raw result value into its declared display
// format. Coercion failures fall back to plain stringification rather
// than failing the render.
func formatValue(v any, format string) string {
	if v == nil {
		return missingPlaceholder
	}
	switch format {
	case "currency":
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return stringifyValue(v)
		}
		return fmt.Sprintf("$%.2f", f)
	case "percentage":
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return stringifyValue(v)
		}
		return fmt.Sprintf("%.1f%%", f)
	case "number":
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return stringifyValue(v)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case "boolean":
		b, err := cast.ToBoolE(v)
		if err != nil {
			return stringifyValue(v)
		}
		if b {
			return "Yes"
		}
		return "No"
	case "date":
		t, err := cast.ToTimeE(v)
		if err != nil {
			return stringifyValue(v)
		}
		return t.Format("Jan 2, 2006")
	}
	return stringifyValue(v)
}

// stringifyValue renders a value as display text. Whole numbers print
// without a decimal point.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
