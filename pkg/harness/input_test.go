package harness

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/toolmint/toolmint/pkg/schema"
)

func TestValidateInputCoercion(t *testing.T) {
	fields := []schema.FormField{
		{ID: "subtotal", Type: "number", Label: "Subtotal", Required: true},
		{ID: "vip", Type: "boolean", Label: "VIP"},
		{ID: "plan", Type: "select", Label: "Plan", Options: []schema.FieldOption{
			{Label: "Basic", Value: "basic"}, {Label: "Pro", Value: "pro"},
		}},
		{ID: "note", Type: "text", Label: "Note"},
	}

	got, err := ValidateInput(fields, map[string]any{
		"subtotal": "42.5", // numeric string coerces
		"vip":      "true",
		"plan":     "pro",
		"note":     "hello",
	})
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}
	want := map[string]any{
		"subtotal": 42.5,
		"vip":      true,
		"plan":     "pro",
		"note":     "hello",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestValidateInputMissingRequiredNamesFields(t *testing.T) {
	fields := []schema.FormField{
		{ID: "subtotal", Type: "number", Label: "Subtotal", Required: true},
		{ID: "tipPercentage", Type: "number", Label: "Tip", Required: true},
		{ID: "note", Type: "text", Label: "Note"},
	}
	_, err := ValidateInput(fields, map[string]any{"note": "no numbers"})
	var inputErr *InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("err = %v, want InputError", err)
	}
	got := inputErr.Fields()
	sort.Strings(got)
	want := []string{"subtotal", "tipPercentage"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("failing fields = %v, want %v", got, want)
	}
}

func TestValidateInputWrongType(t *testing.T) {
	fields := []schema.FormField{
		{ID: "subtotal", Type: "number", Label: "Subtotal", Required: true},
	}
	_, err := ValidateInput(fields, map[string]any{"subtotal": "three dollars"})
	var inputErr *InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("err = %v, want InputError", err)
	}
	if inputErr.Problems[0].FieldID != "subtotal" {
		t.Errorf("problems = %+v", inputErr.Problems)
	}
}

func TestValidateInputDefaults(t *testing.T) {
	fields := []schema.FormField{
		{ID: "tipPercentage", Type: "number", Label: "Tip", Default: 15},
		{ID: "note", Type: "text", Label: "Note"},
	}
	got, err := ValidateInput(fields, map[string]any{})
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}
	if got["tipPercentage"] != 15.0 {
		t.Errorf("default = %v, want 15", got["tipPercentage"])
	}
	if _, present := got["note"]; present {
		t.Error("optional field without default should be omitted")
	}
}

func TestValidateInputSelectMembership(t *testing.T) {
	fields := []schema.FormField{
		{ID: "plan", Type: "select", Label: "Plan", Required: true, Options: []schema.FieldOption{
			{Label: "Basic", Value: "basic"},
		}},
	}
	if _, err := ValidateInput(fields, map[string]any{"plan": "enterprise"}); err == nil {
		t.Error("expected rejection for undeclared option")
	}
	if _, err := ValidateInput(fields, map[string]any{"plan": "basic"}); err != nil {
		t.Errorf("declared option rejected: %v", err)
	}
}

func TestValidateInputShapes(t *testing.T) {
	cases := []struct {
		fieldType string
		good      string
		bad       string
	}{
		{"email", "dev@example.com", "not-an-email"},
		{"url", "https://example.com/x", "ftp://example.com"},
		{"date", "2026-08-23", "not a date"},
	}
	for _, tc := range cases {
		t.Run(tc.fieldType, func(t *testing.T) {
			fields := []schema.FormField{
				{ID: "f", Type: tc.fieldType, Label: "F", Required: true},
			}
			if _, err := ValidateInput(fields, map[string]any{"f": tc.good}); err != nil {
				t.Errorf("%q rejected: %v", tc.good, err)
			}
			if _, err := ValidateInput(fields, map[string]any{"f": tc.bad}); err == nil {
				t.Errorf("%q accepted", tc.bad)
			}
		})
	}
}
