// Package guardrail defines the pluggable response-scanning interface and
// a reference regex-based implementation. Concrete guardrail providers are
// treated as a plug-in surface per spec.md §1 — this package owns the
// interface and registry, not a mandated fixed scanner.
package guardrail

import "context"

// Verdict is the result of scanning one tool response.
type Verdict struct {
	Clean    bool           `json:"clean"`
	Reason   string         `json:"reason,omitempty"`
	Evidence map[string]any `json:"evidence,omitempty"`
	Provider string         `json:"provider,omitempty"`
}

// CleanVerdict returns a Verdict reporting no findings.
func CleanVerdict(provider string) Verdict {
	return Verdict{Clean: true, Provider: provider}
}

// SuspiciousVerdict returns a Verdict reporting a finding.
func SuspiciousVerdict(provider, reason string, evidence map[string]any) Verdict {
	return Verdict{Clean: false, Reason: reason, Evidence: evidence, Provider: provider}
}

// Provider is the polymorphic guardrail capability: a name plus a scan
// function over a tool call's arguments and response content.
type Provider interface {
	// Name is the registered, CLI-selectable identifier for this provider.
	Name() string
	// Scan inspects response content (already ANSI-sanitized) in light of
	// the originating request arguments and returns a verdict. Scan must
	// respect ctx cancellation/deadline; a provider that does not return
	// before the caller's timeout is treated as
	// suspicious(reason="guardrail_timeout") by the pipeline, not by the
	// provider itself.
	Scan(ctx context.Context, requestArgs map[string]interface{}, responseText string) (Verdict, error)
}
