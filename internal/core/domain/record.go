package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Status
// =============================================================================

// DeploymentStatus is the lifecycle state of a deployment record.
//
// Valid transitions:
//
//	pending → running → {succeeded, failed, partially_failed}
//
// The three right-hand states are terminal.
type DeploymentStatus string

const (
	StatusPending         DeploymentStatus = "pending"
	StatusRunning         DeploymentStatus = "running"
	StatusSucceeded       DeploymentStatus = "succeeded"
	StatusFailed          DeploymentStatus = "failed"
	StatusPartiallyFailed DeploymentStatus = "partially_failed"
)

// Terminal reports whether the status is a terminal state.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusPartiallyFailed:
		return true
	}
	return false
}

// =============================================================================
// Step Results
// =============================================================================

// StepOutcome is the result of executing (or skipping) one plan step.
type StepOutcome string

const (
	OutcomeOk      StepOutcome = "ok"
	OutcomeFailed  StepOutcome = "failed"
	OutcomeSkipped StepOutcome = "skipped"
)

// StepResult records the outcome of a single step. Results are appended in
// plan order and never rewritten.
type StepResult struct {
	StepName string        `json:"step_name"`
	Outcome  StepOutcome   `json:"outcome"`
	Attempts int           `json:"attempts"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// =============================================================================
// Deployment Record
// =============================================================================

// DeploymentRecord tracks one deploy invocation end to end. It is created by
// the orchestrator before the first step runs and mutated only by the
// orchestrator; callers receive it as the completed account of what happened.
type DeploymentRecord struct {
	ID          string           `json:"id"`
	Framework   string           `json:"framework"`
	Provider    string           `json:"provider"`
	AppName     string           `json:"app_name"`
	Plan        DeploymentPlan   `json:"plan"`
	Status      DeploymentStatus `json:"status"`
	StepResults []StepResult     `json:"step_results"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     time.Time        `json:"ended_at,omitempty"`
}

// NewDeploymentRecord creates a pending record for one deploy invocation.
func NewDeploymentRecord(framework, provider, appName string, plan DeploymentPlan) *DeploymentRecord {
	return &DeploymentRecord{
		ID:          uuid.New().String(),
		Framework:   framework,
		Provider:    provider,
		AppName:     appName,
		Plan:        plan,
		Status:      StatusPending,
		StepResults: make([]StepResult, 0, len(plan.Steps)),
		StartedAt:   time.Now().UTC(),
	}
}

// Begin transitions the record from pending to running. It is called on
// first step dispatch.
func (r *DeploymentRecord) Begin() {
	if r.Status == StatusPending {
		r.Status = StatusRunning
	}
}

// AppendResult appends a step result in plan order.
func (r *DeploymentRecord) AppendResult(res StepResult) {
	r.StepResults = append(r.StepResults, res)
}

// Finish moves the record into its terminal state derived from the recorded
// step results and stamps the end time.
func (r *DeploymentRecord) Finish() {
	r.Status = ComputeStatus(r.StepResults)
	r.EndedAt = time.Now().UTC()
}

// ResultFor returns the result for a step name, if recorded.
func (r *DeploymentRecord) ResultFor(stepName string) (StepResult, bool) {
	for _, res := range r.StepResults {
		if res.StepName == stepName {
			return res, true
		}
	}
	return StepResult{}, false
}

// ComputeStatus derives the terminal status from recorded step results.
//
// Invariant:
//   - Succeeded iff every result is ok
//   - Failed iff the run halted before any step succeeded
//   - PartiallyFailed iff at least one step succeeded before the halt
func ComputeStatus(results []StepResult) DeploymentStatus {
	if len(results) == 0 {
		return StatusFailed
	}

	okCount := 0
	halted := false
	for _, res := range results {
		switch res.Outcome {
		case OutcomeOk:
			okCount++
		case OutcomeFailed, OutcomeSkipped:
			halted = true
		}
	}

	if !halted {
		return StatusSucceeded
	}
	if okCount > 0 {
		return StatusPartiallyFailed
	}
	return StatusFailed
}
