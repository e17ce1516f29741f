package diagnose

import (
	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Classifier
// =============================================================================

// Classifier applies an ordered rule set to failure logs. Identical input
// always yields an identical result.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from explicit rules. Rules are evaluated
// in the order given. Invalid rules are rejected here, never at classify time.
func NewClassifier(rules []Rule) (*Classifier, error) {
	compiled := make([]Rule, len(rules))
	copy(compiled, rules)
	for i := range compiled {
		if err := compiled[i].compile(); err != nil {
			return nil, err
		}
	}
	return &Classifier{rules: compiled}, nil
}

// NewDefaultClassifier builds a classifier with the builtin rule set.
func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(builtinRules())
	if err != nil {
		// The builtin set is validated by tests; a compile failure here is a
		// programming error.
		panic(err)
	}
	return c
}

// WithRules returns a classifier that evaluates extra rules ahead of the
// receiver's rules, so operator-provided rules can override builtins.
func (c *Classifier) WithRules(rules []Rule) (*Classifier, error) {
	merged := make([]Rule, 0, len(rules)+len(c.rules))
	merged = append(merged, rules...)
	merged = append(merged, c.rules...)
	return NewClassifier(merged)
}

// Classify determines the failure category for a captured log. The first
// rule in scope for (framework, provider) whose pattern matches wins; when
// nothing matches the result is Unknown with generic suggestions.
func (c *Classifier) Classify(framework, provider, logText string) domain.DiagnosisResult {
	for _, rule := range c.rules {
		if !rule.appliesTo(framework, provider) {
			continue
		}
		if rule.re.MatchString(logText) {
			return domain.DiagnosisResult{
				Category:         rule.Category,
				Confidence:       rule.Confidence,
				SuggestedActions: rule.Suggestions,
			}
		}
	}

	return domain.DiagnosisResult{
		Category:         domain.DiagnosisUnknown,
		Confidence:       0,
		SuggestedActions: genericSuggestions,
	}
}
