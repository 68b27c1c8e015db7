package guardrail

import (
	"context"
	"regexp"
)

// signature is one named detection rule: a category label plus the regex
// that fires it, compiled once at construction time for minimal per-scan
// overhead.
type signature struct {
	reason   string
	category string
	re       *regexp.Regexp
}

// signatureSpec is the uncompiled form signatures are declared in, kept
// separate from signature so the regex source stays a plain string literal
// next to its name instead of buried in regexp.MustCompile calls.
type signatureSpec struct {
	reason   string
	category string
	pattern  string
}

// builtinSignatures is the reference pattern catalog: a small, readable set
// of prompt-injection tells to look for in a downstream tool response's
// text content. It is not meant to be exhaustive or resistant to a
// determined adversary — spec.md §1 treats guardrail-provider internals as
// an out-of-scope plug-in, and this provider exists only so
// `--guardrail-provider regex` has a concrete, testable implementation
// rather than an unfilled interface.
var builtinSignatures = []signatureSpec{
	{
		reason:   "system_prompt_override",
		category: "override",
		pattern:  `(?i)\b(?:ignore|disregard|forget)\b.{0,20}\b(?:previous|prior|earlier|above|all)\b.{0,20}\b(?:instructions?|rules?|prompts?|context)\b`,
	},
	{
		reason:   "persona_reassignment",
		category: "impersonation",
		pattern:  `(?i)\b(?:you(?:'re| are)|act)\s+(?:now\s+)?(?:as|like)?\s*(?:a|an|my)\b.{0,30}\b(?:assistant|ai|model|bot|persona)\b`,
	},
	{
		reason:   "fabricated_directive_block",
		category: "override",
		pattern:  `(?i)^\s*(?:new|updated|revised)\s+(?:system\s+)?(?:instructions?|rules?|directives?)\s*:`,
	},
	{
		reason:   "fake_role_delimiter",
		category: "delimiter_abuse",
		pattern:  `(?i)<\s*/?\s*(?:system|developer|assistant|user|human)\s*>`,
	},
	{
		reason:   "fenced_instruction_smuggling",
		category: "delimiter_abuse",
		pattern:  "(?i)(?:`{3}|-{3}|\\.{3})\\s*(?:system|instructions?|rules?|prompt)\\b",
	},
	{
		reason:   "jailbreak_keyword",
		category: "jailbreak",
		pattern:  `(?i)\b(?:jailbreak(?:ed|ing)?|DAN\s+mode|unrestricted\s+mode|no\s+(?:safety|content)\s+(?:filters?|restrictions?))\b`,
	},
	{
		reason:   "zero_width_smuggling",
		category: "obfuscation",
		pattern:  `[\x{200B}\x{200C}\x{200D}\x{FEFF}]{3,}`,
	},
}

// RegexProvider is the reference GuardrailProvider: it runs
// builtinSignatures over a tool response's text content and reports the
// first match. Its Name is "regex", the name callers register it under.
type RegexProvider struct {
	signatures []signature
}

// NewRegexProvider compiles builtinSignatures into a ready-to-use provider.
func NewRegexProvider() *RegexProvider {
	compiled := make([]signature, 0, len(builtinSignatures))
	for _, spec := range builtinSignatures {
		compiled = append(compiled, signature{
			reason:   spec.reason,
			category: spec.category,
			re:       regexp.MustCompile(spec.pattern),
		})
	}
	return &RegexProvider{signatures: compiled}
}

// Name implements Provider.
func (p *RegexProvider) Name() string { return "regex" }

// maxMatchEvidenceLen bounds how much of a match is echoed back in a
// Verdict's details, so a pathologically long match can't bloat the
// quarantine entry.
const maxMatchEvidenceLen = 100

// Scan implements Provider. It ignores ctx cancellation internally (regex
// matching over bounded tool-response text is not a blocking operation);
// the pipeline enforces the overall scan timeout around the call.
func (p *RegexProvider) Scan(_ context.Context, _ map[string]interface{}, responseText string) (Verdict, error) {
	if responseText == "" {
		return CleanVerdict(p.Name()), nil
	}
	for _, sig := range p.signatures {
		loc := sig.re.FindStringIndex(responseText)
		if loc == nil {
			continue
		}
		evidence := responseText[loc[0]:loc[1]]
		if len(evidence) > maxMatchEvidenceLen {
			evidence = evidence[:maxMatchEvidenceLen]
		}
		return SuspiciousVerdict(p.Name(), sig.reason, map[string]any{
			"category":     sig.category,
			"matched_text": evidence,
			"position":     loc[0],
		}), nil
	}
	return CleanVerdict(p.Name()), nil
}
