package diagnose

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Rule File Loading
// =============================================================================

// ruleFile is the on-disk shape of an operator rule set.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ReadRules parses a YAML rule set. Rules keep file order; validation
// happens when they are handed to a classifier.
func ReadRules(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return f.Rules, nil
}

// LoadRuleFile reads a YAML rule set from disk.
func LoadRuleFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()

	return ReadRules(f)
}
