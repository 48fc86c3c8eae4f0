package governance

import (
	"fmt"
	"regexp"

	"github.com/toolmint/toolmint/pkg/schema"
)

// redaction is one compiled pattern/replacement pair.
type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// compileRedactions compiles the policy's redaction rules. A rule that
// fails to compile rejects the whole policy.
func compileRedactions(rules []schema.RedactionRule) ([]redaction, error) {
	compiled := make([]redaction, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, redaction{pattern: re, replace: r.Replace})
	}
	return compiled, nil
}

// Redact applies the policy's compiled redaction rules to a response
// body before it enters the execution context.
func (e *Engine) Redact(body string) string {
	for _, r := range e.redactions {
		body = r.pattern.ReplaceAllString(body, r.replace)
	}
	return body
}
