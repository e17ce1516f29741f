package domain

// =============================================================================
// Step Actions
// =============================================================================

// StepAction identifies what a deployment step does.
type StepAction string

const (
	ActionUpload              StepAction = "upload"
	ActionConfigure           StepAction = "configure"
	ActionInstallDependencies StepAction = "install_dependencies"
	ActionSetupDatabase       StepAction = "setup_database"
	ActionVerify              StepAction = "verify"
)

// =============================================================================
// Deployment Plan
// =============================================================================

// Step is a single unit of work in a deployment plan.
type Step struct {
	// Name uniquely identifies the step within its plan.
	Name string `json:"name"`

	// Action determines which adapter operation executes the step.
	Action StepAction `json:"action"`

	// Params are opaque step parameters interpreted by the adapter.
	Params map[string]string `json:"params,omitempty"`

	// Retryable marks the step as eligible for retry on transient failures.
	Retryable bool `json:"retryable"`
}

// DeploymentPlan is an ordered sequence of steps produced by a framework
// handler for a single deploy request. A plan is immutable after creation:
// the orchestrator reads it, never modifies it.
type DeploymentPlan struct {
	Framework string `json:"framework"`
	Steps     []Step `json:"steps"`
}

// StepNames returns the ordered step names, useful for logging and tests.
func (p DeploymentPlan) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}

// IsEmpty reports whether the plan contains no steps.
func (p DeploymentPlan) IsEmpty() bool {
	return len(p.Steps) == 0
}
