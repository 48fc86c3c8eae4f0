package harness

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/toolmint/toolmint/pkg/schema"
)

// FieldProblem describes one input field that failed validation.
type FieldProblem struct {
	FieldID string `json:"field_id"`
	Message string `json:"message"`
}

// InputError aggregates every field problem from one submission so the
// caller can surface them all at once.
type InputError struct {
	Problems []FieldProblem
}

func (e *InputError) Error() string {
	var parts []string
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s: %s", p.FieldID, p.Message))
	}
	return "input validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the ids of every failing field.
func (e *InputError) Fields() []string {
	out := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p.FieldID
	}
	return out
}

// ValidateInput checks a submission against the declared form fields
// and returns the coerced values keyed by field id. Required fields
// must be present; typed fields coerce or fail; optional absent fields
// take their default or are omitted.
func ValidateInput(fields []schema.FormField, input map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(fields))
	var problems []FieldProblem
	addProblem := func(id, format string, args ...any) {
		problems = append(problems, FieldProblem{FieldID: id, Message: fmt.Sprintf(format, args...)})
	}

	for _, f := range fields {
		raw, present := input[f.ID]
		if !present || raw == nil || raw == "" {
			if f.Required {
				addProblem(f.ID, "required field missing")
				continue
			}
			if f.Default != nil {
				coerced, err := coerceField(f, f.Default)
				if err != nil {
					addProblem(f.ID, "invalid default: %v", err)
					continue
				}
				values[f.ID] = coerced
			}
			continue
		}

		coerced, err := coerceField(f, raw)
		if err != nil {
			addProblem(f.ID, "%v", err)
			continue
		}
		values[f.ID] = coerced
	}

	if len(problems) > 0 {
		return nil, &InputError{Problems: problems}
	}
	return values, nil
}

// coerceField converts a raw submitted value to the field's declared
// type. Numbers become float64 and booleans become bool so downstream
// formulas see uniform types.
func coerceField(f schema.FormField, raw any) (any, error) {
	switch f.Type {
	case "number":
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %v", raw)
		}
		return v, nil

	case "boolean":
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %v", raw)
		}
		return v, nil

	case "select":
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		for _, opt := range f.Options {
			if s == opt.Value {
				return s, nil
			}
		}
		return nil, fmt.Errorf("value %q is not one of the declared options", s)

	case "email":
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return nil, fmt.Errorf("invalid email address %q", s)
		}
		return s, nil

	case "url":
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("invalid url %q", s)
		}
		return s, nil

	case "date":
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		if _, err := cast.ToTimeE(s); err != nil {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return s, nil

	case "tel":
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("empty phone number")
		}
		return s, nil

	default: // text, textarea
		s, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		return s, nil
	}
}
