// Package diagnose classifies raw deployment failure logs into known
// failure categories with remediation suggestions. This is part of the
// Functional Core - classification is pure and deterministic.
package diagnose

import (
	"fmt"
	"regexp"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Rules
// =============================================================================

// Rule matches one known failure signature. Rules are evaluated in order;
// the first rule whose scope and pattern both match determines the category.
type Rule struct {
	// ID names the rule for rule-file overrides and debugging.
	ID string `yaml:"id"`

	// Provider scopes the rule to a provider id; empty matches any provider.
	Provider string `yaml:"provider,omitempty"`

	// Framework scopes the rule to a framework name; empty matches any.
	Framework string `yaml:"framework,omitempty"`

	// Pattern is a case-insensitive regular expression applied to the log text.
	Pattern string `yaml:"pattern"`

	// Category is the failure class this signature indicates.
	Category domain.DiagnosisCategory `yaml:"category"`

	// Confidence in [0, 1]; exact provider/framework signatures score higher
	// than generic keyword rules.
	Confidence float64 `yaml:"confidence"`

	// Suggestions are remediation actions, most relevant first.
	Suggestions []string `yaml:"suggestions"`

	re *regexp.Regexp
}

// compile validates the rule and prepares its pattern.
func (r *Rule) compile() error {
	if r.Pattern == "" {
		return fmt.Errorf("rule %s: empty pattern", r.ID)
	}
	if !knownCategory(r.Category) {
		return fmt.Errorf("rule %s: unknown category %q", r.ID, r.Category)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule %s: confidence %v outside [0, 1]", r.ID, r.Confidence)
	}

	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err)
	}
	r.re = re
	return nil
}

// appliesTo reports whether the rule is in scope for the given context.
func (r *Rule) appliesTo(framework, provider string) bool {
	if r.Provider != "" && r.Provider != provider {
		return false
	}
	if r.Framework != "" && r.Framework != framework {
		return false
	}
	return true
}

func knownCategory(c domain.DiagnosisCategory) bool {
	switch c {
	case domain.DiagnosisAuthFailure,
		domain.DiagnosisNetworkUnreachable,
		domain.DiagnosisDependencyMissing,
		domain.DiagnosisDatabaseConfigError,
		domain.DiagnosisPermissionDenied,
		domain.DiagnosisUnknown:
		return true
	}
	return false
}
