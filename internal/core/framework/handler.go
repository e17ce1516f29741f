// Package framework translates framework build/deploy requirements into
// provider-agnostic deployment plans. This is part of the Functional Core -
// handlers are pure and never touch credentials or the network.
package framework

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Handler Interface
// =============================================================================

// Handler is implemented once per supported framework. BuildPlan validates
// the caller's configuration and emits the ordered deployment plan;
// AnalyzeRequirements checks a provider profile for compatibility before the
// orchestrator resolves credentials or opens connections.
type Handler interface {
	// Name returns the framework identifier, e.g. "wasp".
	Name() string

	// BuildPlan validates config and produces the deployment plan. It fails
	// with *InvalidConfigError naming every missing or invalid key; it never
	// returns a partially valid plan.
	BuildPlan(appName string, config map[string]any) (domain.DeploymentPlan, error)

	// AnalyzeRequirements checks whether the framework can be deployed to a
	// provider with the given profile.
	AnalyzeRequirements(profile domain.ProviderProfile) CompatibilityResult
}

// =============================================================================
// Compatibility
// =============================================================================

// Compatibility is the outcome of a requirements analysis.
type Compatibility string

const (
	Compatible    Compatibility = "compatible"
	Incompatible  Compatibility = "incompatible"
	RequiresSetup Compatibility = "requires_setup"
)

// CompatibilityResult reports whether a framework can deploy to a provider.
type CompatibilityResult struct {
	Compatibility Compatibility `json:"compatibility"`

	// Reason explains an incompatible result.
	Reason string `json:"reason,omitempty"`

	// Prerequisites lists what must be set up first when the result is
	// requires_setup.
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// =============================================================================
// Invalid Config
// =============================================================================

// InvalidConfigError reports every missing or invalid configuration key in
// one pass so the caller can fix them all at once.
type InvalidConfigError struct {
	Framework string
	Missing   []string
	Invalid   map[string]string // key -> why it is invalid
}

func (e *InvalidConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing keys: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("invalid %s: %s", k, e.Invalid[k]))
		}
	}
	return fmt.Sprintf("invalid %s config: %s", e.Framework, strings.Join(parts, "; "))
}

// HasProblems reports whether any key was missing or invalid.
func (e *InvalidConfigError) HasProblems() bool {
	return len(e.Missing) > 0 || len(e.Invalid) > 0
}

func (e *InvalidConfigError) addMissing(key string) {
	e.Missing = append(e.Missing, key)
}

func (e *InvalidConfigError) addInvalid(key, reason string) {
	if e.Invalid == nil {
		e.Invalid = make(map[string]string)
	}
	e.Invalid[key] = reason
}

// =============================================================================
// Config Helpers
// =============================================================================

// configString reads a string key from an untyped config map.
func configString(config map[string]any, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// configBool reads a boolean key from an untyped config map. JSON decoders
// hand booleans through as bool; anything else counts as absent.
func configBool(config map[string]any, key string) (bool, bool) {
	v, ok := config[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
