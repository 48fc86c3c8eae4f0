package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Evaluate parses src and evaluates it against bindings in one call.
// Callers that run the same formula repeatedly should use a Cache.
func Evaluate(src string, bindings map[string]any) (any, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Eval(n, bindings)
}

// EvaluateBool evaluates src and coerces the result to a boolean using
// the formula truthiness rules. Used for condition steps.
func EvaluateBool(src string, bindings map[string]any) (bool, error) {
	v, err := Evaluate(src, bindings)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Eval walks a parsed AST against bindings. Numbers are float64
// throughout; numeric strings coerce for arithmetic.
func Eval(n Node, bindings map[string]any) (any, error) {
	v, err := eval(n, bindings)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func eval(n Node, bindings map[string]any) (any, *Error) {
	switch node := n.(type) {
	case *Literal:
		return node.Value, nil

	case *Variable:
		v, ok := bindings[node.Name]
		if !ok {
			return nil, errf(KindUnknownVariable, node.Pos, "unknown variable %q", node.Name)
		}
		return v, nil

	case *Unary:
		x, err := eval(node.X, bindings)
		if err != nil {
			return nil, err
		}
		switch node.Op {
		case "-":
			f, ok := toNumber(x)
			if !ok {
				return nil, errf(KindType, -1, "cannot negate %s", typeName(x))
			}
			return -f, nil
		case "!":
			return !Truthy(x), nil
		}
		return nil, errf(KindSyntax, -1, "unknown unary operator %q", node.Op)

	case *Binary:
		return evalBinary(node, bindings)

	case *Call:
		fn := builtins[node.Fn]
		args := make([]any, len(node.Args))
		for i, a := range node.Args {
			v, err := eval(a, bindings)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return fn(args, node.Pos)
	}
	return nil, errf(KindSyntax, -1, "unknown node type %T", n)
}

func evalBinary(node *Binary, bindings map[string]any) (any, *Error) {
	// Short-circuit booleans evaluate the right side only when needed.
	switch node.Op {
	case "&&":
		l, err := eval(node.Left, bindings)
		if err != nil {
			return nil, err
		}
		if !Truthy(l) {
			return false, nil
		}
		r, err := eval(node.Right, bindings)
		if err != nil {
			return nil, err
		}
		return Truthy(r), nil
	case "||":
		l, err := eval(node.Left, bindings)
		if err != nil {
			return nil, err
		}
		if Truthy(l) {
			return true, nil
		}
		r, err := eval(node.Right, bindings)
		if err != nil {
			return nil, err
		}
		return Truthy(r), nil
	}

	l, err := eval(node.Left, bindings)
	if err != nil {
		return nil, err
	}
	r, err := eval(node.Right, bindings)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case "+":
		if lf, ok := toNumber(l); ok {
			if rf, ok := toNumber(r); ok {
				return lf + rf, nil
			}
		}
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
		return nil, errf(KindType, node.Pos, "cannot add %s and %s", typeName(l), typeName(r))

	case "-", "*", "/", "%", "^":
		lf, lok := toNumber(l)
		rf, rok := toNumber(r)
		if !lok || !rok {
			return nil, errf(KindType, node.Pos, "operator %q requires numeric operands, got %s and %s", node.Op, typeName(l), typeName(r))
		}
		switch node.Op {
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			if rf == 0 {
				return nil, errf(KindDivisionByZero, node.Pos, "division by zero")
			}
			return lf / rf, nil
		case "%":
			if rf == 0 {
				return nil, errf(KindDivisionByZero, node.Pos, "modulo by zero")
			}
			return math.Mod(lf, rf), nil
		case "^":
			return math.Pow(lf, rf), nil
		}

	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil

	case "<", "<=", ">", ">=":
		if lf, ok := toNumber(l); ok {
			if rf, ok := toNumber(r); ok {
				return compareFloats(node.Op, lf, rf), nil
			}
		}
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return compareStrings(node.Op, ls, rs), nil
		}
		return nil, errf(KindType, node.Pos, "cannot compare %s and %s with %q", typeName(l), typeName(r), node.Op)
	}
	return nil, errf(KindSyntax, node.Pos, "unknown operator %q", node.Op)
}

// looseEqual compares values the way tool authors expect: numeric
// comparison when both sides coerce to numbers, exact comparison
// otherwise. Mismatched types are never equal.
func looseEqual(l, r any) bool {
	if lf, ok := toNumber(l); ok {
		if rf, ok := toNumber(r); ok {
			return lf == rf
		}
	}
	switch lv := l.(type) {
	case string:
		rv, ok := r.(string)
		return ok && lv == rv
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv
	case nil:
		return r == nil
	}
	return false
}

func compareFloats(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

func compareStrings(op, l, r string) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

// toNumber coerces a value to float64. Numeric strings coerce; booleans,
// nil and composites do not.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Truthy reports the boolean interpretation of a formula value.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	return true
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case float64, float32, int, int64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

type builtinFunc func(args []any, pos int) (any, *Error)

// builtins is the closed whitelist of pure functions callable from a
// formula. The parser rejects any call outside this map.
var builtins = map[string]builtinFunc{
	"min":    builtinMin,
	"max":    builtinMax,
	"round":  builtinRound,
	"abs":    numericUnary("abs", math.Abs),
	"floor":  numericUnary("floor", math.Floor),
	"ceil":   numericUnary("ceil", math.Ceil),
	"concat": builtinConcat,
	"len":    builtinLen,
}

func builtinMin(args []any, pos int) (any, *Error) {
	return foldNumeric("min", args, pos, math.Min)
}

func builtinMax(args []any, pos int) (any, *Error) {
	return foldNumeric("max", args, pos, math.Max)
}

func foldNumeric(name string, args []any, pos int, fold func(a, b float64) float64) (any, *Error) {
	if len(args) == 0 {
		return nil, errf(KindType, pos, "%s requires at least one argument", name)
	}
	acc, ok := toNumber(args[0])
	if !ok {
		return nil, errf(KindType, pos, "%s requires numeric arguments, got %s", name, typeName(args[0]))
	}
	for _, a := range args[1:] {
		f, ok := toNumber(a)
		if !ok {
			return nil, errf(KindType, pos, "%s requires numeric arguments, got %s", name, typeName(a))
		}
		acc = fold(acc, f)
	}
	return acc, nil
}

func numericUnary(name string, fn func(float64) float64) builtinFunc {
	return func(args []any, pos int) (any, *Error) {
		if len(args) != 1 {
			return nil, errf(KindType, pos, "%s requires exactly one argument", name)
		}
		f, ok := toNumber(args[0])
		if !ok {
			return nil, errf(KindType, pos, "%s requires a numeric argument, got %s", name, typeName(args[0]))
		}
		return fn(f), nil
	}
}

func builtinRound(args []any, pos int) (any, *Error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, errf(KindType, pos, "round requires one or two arguments")
	}
	f, ok := toNumber(args[0])
	if !ok {
		return nil, errf(KindType, pos, "round requires a numeric argument, got %s", typeName(args[0]))
	}
	digits := 0.0
	if len(args) == 2 {
		d, ok := toNumber(args[1])
		if !ok {
			return nil, errf(KindType, pos, "round digits must be numeric, got %s", typeName(args[1]))
		}
		digits = d
	}
	scale := math.Pow(10, math.Trunc(digits))
	return math.Round(f*scale) / scale, nil
}

func builtinConcat(args []any, pos int) (any, *Error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(Stringify(a))
	}
	return sb.String(), nil
}

func builtinLen(args []any, pos int) (any, *Error) {
	if len(args) != 1 {
		return nil, errf(KindType, pos, "len requires exactly one argument")
	}
	switch v := args[0].(type) {
	case string:
		return float64(utf8.RuneCountInString(v)), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	}
	return nil, errf(KindType, pos, "len requires a string, array, or object, got %s", typeName(args[0]))
}

// Stringify renders a formula value for concatenation and display.
// Whole numbers print without a decimal point.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	if f, ok := toNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
