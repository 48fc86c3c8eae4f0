// Package governance enforces per-tool network policy: host
// allowlist/denylist checks for outbound api_call steps and regex
// redaction of response bodies before they enter the execution context.
package governance

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/toolmint/toolmint/pkg/schema"
)

// Engine evaluates a tool's governance policy against outbound requests.
type Engine struct {
	AllowedHosts []string
	DeniedHosts  []string
	redactions   []redaction
}

// NewEngine creates an Engine from a GovernancePolicy. A nil policy
// yields a permissive engine. Redaction patterns are compiled eagerly so
// a bad pattern fails at construction, not mid-run.
func NewEngine(policy *schema.GovernancePolicy) (*Engine, error) {
	if policy == nil {
		return &Engine{}, nil
	}
	redactions, err := compileRedactions(policy.Redact)
	if err != nil {
		return nil, fmt.Errorf("compile redaction rules: %w", err)
	}
	return &Engine{
		AllowedHosts: policy.AllowedHosts,
		DeniedHosts:  policy.DeniedHosts,
		redactions:   redactions,
	}, nil
}

// CheckURL validates the request host against the denylist and, when an
// allowlist is declared, requires membership. Deny takes precedence over
// allow. Host matching ignores the port.
func (e *Engine) CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse request url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("request url %q has no host", rawURL)
	}

	for _, denied := range e.DeniedHosts {
		if hostMatches(host, denied) {
			return fmt.Errorf("host %q is denied by governance policy", host)
		}
	}

	if len(e.AllowedHosts) > 0 {
		for _, allowed := range e.AllowedHosts {
			if hostMatches(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("host %q is not in the governance allowlist", host)
	}
	return nil
}

// hostMatches compares a request host against a policy entry. An entry
// of the form "*.example.com" matches any subdomain of example.com but
// not example.com itself.
func hostMatches(host, entry string) bool {
	if sub, ok := strings.CutPrefix(entry, "*."); ok {
		return strings.HasSuffix(host, "."+sub)
	}
	return strings.EqualFold(host, entry)
}
