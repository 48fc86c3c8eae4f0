package governance

import (
	"strings"
	"testing"

	"github.com/toolmint/toolmint/pkg/schema"
)

// TestAllowlistAcceptsAllowedHost verifies allowed hosts pass.
func TestAllowlistAcceptsAllowedHost(t *testing.T) {
	e := &Engine{
		AllowedHosts: []string{"api.example.com", "rates.example.org"},
	}
	if err := e.CheckURL("https://api.example.com/v1/rates"); err != nil {
		t.Errorf("expected allowed, got: %v", err)
	}
}

// TestAllowlistRejectsUnlistedHost verifies non-allowed hosts are blocked.
func TestAllowlistRejectsUnlistedHost(t *testing.T) {
	e := &Engine{
		AllowedHosts: []string{"api.example.com"},
	}
	if err := e.CheckURL("https://evil.example.net/steal"); err == nil {
		t.Error("expected rejection for unlisted host")
	}
}

// TestDenylistBlocksHost verifies denied hosts are blocked.
func TestDenylistBlocksHost(t *testing.T) {
	e := &Engine{
		DeniedHosts: []string{"internal.corp.example"},
	}
	if err := e.CheckURL("http://internal.corp.example/admin"); err == nil {
		t.Error("expected rejection for denied host")
	}
}

// TestDenyTakesPrecedence verifies deny wins when a host is in both lists.
func TestDenyTakesPrecedence(t *testing.T) {
	e := &Engine{
		AllowedHosts: []string{"api.example.com"},
		DeniedHosts:  []string{"api.example.com"},
	}
	if err := e.CheckURL("https://api.example.com/v1"); err == nil {
		t.Error("expected deny to take precedence over allow")
	}
}

// TestEmptyPolicyIsPermissive verifies a nil policy allows everything.
func TestEmptyPolicyIsPermissive(t *testing.T) {
	e, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine(nil): %v", err)
	}
	if err := e.CheckURL("https://anywhere.example/path"); err != nil {
		t.Errorf("expected permissive, got: %v", err)
	}
}

// TestWildcardHostMatching verifies *.example.com matches subdomains only.
func TestWildcardHostMatching(t *testing.T) {
	e := &Engine{
		AllowedHosts: []string{"*.example.com"},
	}
	if err := e.CheckURL("https://api.example.com/v1"); err != nil {
		t.Errorf("subdomain should match wildcard: %v", err)
	}
	if err := e.CheckURL("https://example.com/v1"); err == nil {
		t.Error("apex should not match wildcard entry")
	}
}

// TestHostMatchIgnoresPort verifies port does not defeat the check.
func TestHostMatchIgnoresPort(t *testing.T) {
	e := &Engine{
		DeniedHosts: []string{"blocked.example"},
	}
	if err := e.CheckURL("https://blocked.example:8443/path"); err == nil {
		t.Error("expected rejection regardless of port")
	}
}

// TestRedaction verifies patterns replace matched content.
func TestRedaction(t *testing.T) {
	e, err := NewEngine(&schema.GovernancePolicy{
		Redact: []schema.RedactionRule{
			{Pattern: `(?i)api[_-]?key["\s:=]+[a-z0-9-]+`, Replace: "api_key=[REDACTED]"},
			{Pattern: `\b\d{16}\b`, Replace: "[CARD]"},
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	in := `{"api_key": "abc-123-def", "card": "4111111111111111"}`
	out := e.Redact(in)
	if out == in {
		t.Error("expected redaction to modify the body")
	}
	for _, leak := range []string{"abc-123-def", "4111111111111111"} {
		if strings.Contains(out, leak) {
			t.Errorf("redacted body still contains %q: %s", leak, out)
		}
	}
}

// TestBadRedactionPatternFailsEarly verifies compile errors surface from
// the constructor.
func TestBadRedactionPatternFailsEarly(t *testing.T) {
	_, err := NewEngine(&schema.GovernancePolicy{
		Redact: []schema.RedactionRule{{Pattern: "([0-9]+", Replace: "x"}},
	})
	if err == nil {
		t.Error("expected error for invalid pattern")
	}
}
