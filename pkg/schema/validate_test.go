package schema

import (
	"strings"
	"testing"
)

func loadTool(t *testing.T, doc string) *Tool {
	t.Helper()
	tool, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tool
}

func hasDomainError(errs []*ValidationError, pathFrag, msgFrag string) bool {
	for _, e := range errs {
		if e.Phase == "domain" && strings.Contains(e.Path, pathFrag) && strings.Contains(e.Message, msgFrag) {
			return true
		}
	}
	return false
}

func TestValidateTipCalculator(t *testing.T) {
	tool := loadTool(t, tipCalculatorYAML)
	errs := Validate(tool)
	for _, e := range errs {
		t.Errorf("unexpected validation error: %v", e)
	}
}

func TestValidateDomainRules(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Tool)
		path    string
		message string
	}{
		{
			"bad apiVersion",
			func(tl *Tool) { tl.APIVersion = "tool/v2" },
			"apiVersion", "unrecognized",
		},
		{
			"bad status",
			func(tl *Tool) { tl.Status = "archived" },
			"status", "invalid status",
		},
		{
			"duplicate field id",
			func(tl *Tool) { tl.Inputs = append(tl.Inputs, FormField{ID: "subtotal", Type: "number", Label: "Again"}) },
			"inputs[2].id", "duplicate field id",
		},
		{
			"select without options",
			func(tl *Tool) { tl.Inputs[1].Options = nil },
			"inputs[1].options", "requires options",
		},
		{
			"options on non-select",
			func(tl *Tool) { tl.Inputs[0].Options = []FieldOption{{Label: "x", Value: "x"}} },
			"inputs[0].options", "not select",
		},
		{
			"duplicate step id",
			func(tl *Tool) { tl.Logic[1].ID = "tip" },
			"logic[1].id", "duplicate step id",
		},
		{
			"step id collides with field id",
			func(tl *Tool) { tl.Logic[1].ID = "subtotal" },
			"logic[1].id", "collides with a field id",
		},
		{
			"no logic steps",
			func(tl *Tool) { tl.Logic = nil },
			"logic", "at least one logic step",
		},
		{
			"config type mismatch",
			func(tl *Tool) { tl.Logic[0].Type = "condition" },
			"logic[0]", "requires a \"condition\" config",
		},
		{
			"extra config block",
			func(tl *Tool) { tl.Logic[0].Transform = &TransformConfig{Input: "subtotal", Op: "round"} },
			"logic[0].transform", "carries a \"transform\" config",
		},
		{
			"formula syntax checked at save time",
			func(tl *Tool) { tl.Logic[0].Calculation.Formula = "subtotal * (tipPercentage" },
			"logic[0].calculation.formula", "invalid formula",
		},
		{
			"disallowed token caught at save time",
			func(tl *Tool) { tl.Logic[0].Calculation.Formula = "import(\"os\")" },
			"logic[0].calculation.formula", "invalid formula",
		},
		{
			"variable binds unknown key",
			func(tl *Tool) { tl.Logic[0].Calculation.Variables[0].From = "nonexistent" },
			"variables[0].from", "unknown context key",
		},
		{
			"duplicate variable name",
			func(tl *Tool) { tl.Logic[0].Calculation.Variables[1].Name = "subtotal" },
			"variables[1].name", "duplicate variable name",
		},
		{
			"table output needs mappings",
			func(tl *Tool) { tl.Output.FieldMappings = nil },
			"output.field_mappings", "non-empty field_mappings",
		},
		{
			"invalid display format",
			func(tl *Tool) { tl.Output.FieldMappings[0].Format = "roman" },
			"output.field_mappings[0].format", "invalid display format",
		},
		{
			"governance host overlap",
			func(tl *Tool) {
				tl.Governance = &GovernancePolicy{
					AllowedHosts: []string{"api.example.com"},
					DeniedHosts:  []string{"api.example.com"},
				}
			},
			"governance", "overlap",
		},
		{
			"governance bad redact regex",
			func(tl *Tool) {
				tl.Governance = &GovernancePolicy{
					Redact: []RedactionRule{{Pattern: "([0-9]+", Replace: "***"}},
				}
			},
			"governance.redact[0].pattern", "invalid regex",
		},
		{
			"bad defaults duration",
			func(tl *Tool) { tl.Defaults = &Defaults{Timeout: "ten seconds"} },
			"defaults.timeout", "invalid duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool := loadTool(t, tipCalculatorYAML)
			tc.mutate(tool)
			errs := ValidateDomain(tool)
			if !hasDomainError(errs, tc.path, tc.message) {
				t.Errorf("want error at %q containing %q, got %v", tc.path, tc.message, errs)
			}
		})
	}
}

func TestValidateStepConfigs(t *testing.T) {
	base := func() *Tool {
		return loadTool(t, tipCalculatorYAML)
	}

	t.Run("condition branch target must exist", func(t *testing.T) {
		tool := base()
		tool.Logic = append(tool.Logic, Step{
			ID:   "check",
			Type: "condition",
			Condition: &ConditionConfig{
				Expression: "total > 100",
				Then:       "missing-step",
			},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "condition.then", "unknown step id") {
			t.Errorf("want unknown-target error, got %v", errs)
		}
	})

	t.Run("switch requires cases", func(t *testing.T) {
		tool := base()
		tool.Logic = append(tool.Logic, Step{
			ID:   "route",
			Type: "switch",
			Switch: &SwitchConfig{
				Selector: "tipPercentage",
			},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "switch.cases", "at least one case") {
			t.Errorf("want empty-cases error, got %v", errs)
		}
	})

	t.Run("map transform requires expression", func(t *testing.T) {
		tool := base()
		tool.Logic = append(tool.Logic, Step{
			ID:   "scaled",
			Type: "transform",
			Transform: &TransformConfig{
				Input: "tip",
				Op:    "map",
			},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "transform.expression", "requires an expression") {
			t.Errorf("want missing-expression error, got %v", errs)
		}
	})

	t.Run("api_call url scheme", func(t *testing.T) {
		tool := base()
		tool.Logic = append(tool.Logic, Step{
			ID:   "fetch",
			Type: "api_call",
			APICall: &APICallConfig{
				Method: "GET",
				URL:    "ftp://example.com/rates",
			},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "api_call.url", "http(s)") {
			t.Errorf("want scheme error, got %v", errs)
		}
	})

	t.Run("templated url skips static parse", func(t *testing.T) {
		tool := base()
		tool.Logic = append(tool.Logic, Step{
			ID:   "fetch",
			Type: "api_call",
			APICall: &APICallConfig{
				Method: "GET",
				URL:    "https://api.example.com/rates/{{.currency}}",
			},
		})
		errs := ValidateDomain(tool)
		if hasDomainError(errs, "api_call.url", "") {
			t.Errorf("templated url should not fail static checks: %v", errs)
		}
	})

	t.Run("ai_analysis requires prompt", func(t *testing.T) {
		tool := base()
		tool.Logic = append(tool.Logic, Step{
			ID:         "summary",
			Type:       "ai_analysis",
			AIAnalysis: &AIAnalysisConfig{Timeout: "30s"},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "ai_analysis.prompt", "requires a prompt") {
			t.Errorf("want missing-prompt error, got %v", errs)
		}
	})
}

func TestValidateGraphCycles(t *testing.T) {
	t.Run("condition back-edge", func(t *testing.T) {
		tool := loadTool(t, tipCalculatorYAML)
		tool.Logic = append(tool.Logic, Step{
			ID:   "loop",
			Type: "condition",
			Condition: &ConditionConfig{
				Expression: "total > 0",
				Then:       "tip", // jumps back to the first step
			},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "logic", "cycle") {
			t.Errorf("want cycle error, got %v", errs)
		}
	})

	t.Run("switch back-edge", func(t *testing.T) {
		tool := loadTool(t, tipCalculatorYAML)
		tool.Logic = append(tool.Logic, Step{
			ID:   "route",
			Type: "switch",
			Switch: &SwitchConfig{
				Selector: "tipPercentage",
				Cases:    []SwitchCase{{Value: "10", Next: "total"}},
				Default:  "route",
			},
		})
		errs := ValidateDomain(tool)
		if !hasDomainError(errs, "logic", "cycle") {
			t.Errorf("want cycle error, got %v", errs)
		}
	})

	t.Run("forward branches are acyclic", func(t *testing.T) {
		tool := loadTool(t, tipCalculatorYAML)
		tool.Logic = append(tool.Logic,
			Step{
				ID:   "check",
				Type: "condition",
				Condition: &ConditionConfig{
					Expression: "total > 100",
					Then:       "big",
					Else:       "small",
				},
			},
			Step{
				ID:   "big",
				Type: "calculation",
				Calculation: &CalculationConfig{
					Formula: "total",
					Variables: []VariableBinding{
						{Name: "total", From: "total"},
					},
				},
			},
			Step{
				ID:   "small",
				Type: "calculation",
				Calculation: &CalculationConfig{
					Formula: "total",
					Variables: []VariableBinding{
						{Name: "total", From: "total"},
					},
				},
			},
		)
		errs := ValidateDomain(tool)
		if hasDomainError(errs, "logic", "cycle") {
			t.Errorf("acyclic forward branches flagged as cycle: %v", errs)
		}
	})
}

func TestValidateFileStructuralError(t *testing.T) {
	_, errs := ValidateFile("testdata/does-not-exist.tool.yaml")
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Fatalf("want single structural error, got %v", errs)
	}
}
