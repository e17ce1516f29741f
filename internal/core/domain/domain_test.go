package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Status Derivation Tests
// =============================================================================

func TestComputeStatus(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []StepOutcome
		want     DeploymentStatus
	}{
		{"all ok", []StepOutcome{OutcomeOk, OutcomeOk, OutcomeOk}, StatusSucceeded},
		{"single ok", []StepOutcome{OutcomeOk}, StatusSucceeded},
		{"first step failed", []StepOutcome{OutcomeFailed, OutcomeSkipped}, StatusFailed},
		{"failure after progress", []StepOutcome{OutcomeOk, OutcomeFailed, OutcomeSkipped}, StatusPartiallyFailed},
		{"skip counts as halt", []StepOutcome{OutcomeOk, OutcomeSkipped}, StatusPartiallyFailed},
		{"no results", nil, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]StepResult, 0, len(tt.outcomes))
			for i, o := range tt.outcomes {
				results = append(results, StepResult{
					StepName: fmt.Sprintf("step-%d", i),
					Outcome:  o,
					Attempts: 1,
				})
			}
			assert.Equal(t, tt.want, ComputeStatus(results))
		})
	}
}

func TestDeploymentRecord_Lifecycle(t *testing.T) {
	plan := DeploymentPlan{
		Framework: "wasp",
		Steps: []Step{
			{Name: "upload", Action: ActionUpload, Retryable: true},
			{Name: "verify", Action: ActionVerify, Retryable: true},
		},
	}

	record := NewDeploymentRecord("wasp", "shared_hosting", "task-manager", plan)
	require.NotEmpty(t, record.ID)
	assert.Equal(t, StatusPending, record.Status)
	assert.False(t, record.Status.Terminal())

	record.Begin()
	assert.Equal(t, StatusRunning, record.Status)

	// Begin is idempotent once running
	record.Begin()
	assert.Equal(t, StatusRunning, record.Status)

	record.AppendResult(StepResult{StepName: "upload", Outcome: OutcomeOk, Attempts: 1})
	record.AppendResult(StepResult{StepName: "verify", Outcome: OutcomeOk, Attempts: 2})
	record.Finish()

	assert.Equal(t, StatusSucceeded, record.Status)
	assert.True(t, record.Status.Terminal())
	assert.False(t, record.EndedAt.IsZero())

	res, ok := record.ResultFor("verify")
	require.True(t, ok)
	assert.Equal(t, 2, res.Attempts)

	_, ok = record.ResultFor("configure")
	assert.False(t, ok)
}

func TestNewDeploymentRecord_UniqueIDs(t *testing.T) {
	a := NewDeploymentRecord("wasp", "app_platform", "demo", DeploymentPlan{})
	b := NewDeploymentRecord("wasp", "app_platform", "demo", DeploymentPlan{})
	assert.NotEqual(t, a.ID, b.ID)
}

// =============================================================================
// Failure Taxonomy Tests
// =============================================================================

func TestErrorCategory_Retryable(t *testing.T) {
	assert.True(t, CategoryConnectivity.Retryable())
	assert.False(t, CategoryAuthFailure.Retryable())
	assert.False(t, CategoryRemoteWrite.Retryable())
	assert.False(t, CategoryDatabaseConfig.Retryable())
	assert.False(t, CategoryPermissionDenied.Retryable())
	assert.False(t, CategoryUnknown.Retryable())
}

func TestCategoryOf(t *testing.T) {
	base := errors.New("connection refused")
	stepErr := NewStepError(CategoryConnectivity, "Upload", "dial failed", base)

	assert.Equal(t, CategoryConnectivity, CategoryOf(stepErr))
	assert.Equal(t, CategoryConnectivity, CategoryOf(fmt.Errorf("deploy: %w", stepErr)))
	assert.Equal(t, CategoryUnknown, CategoryOf(base))
	assert.Equal(t, CategoryUnknown, CategoryOf(nil))

	assert.ErrorIs(t, stepErr, base)
	assert.Contains(t, stepErr.Error(), "Upload")
	assert.Contains(t, stepErr.Error(), "connectivity_error")
	assert.Contains(t, stepErr.Error(), "dial failed")
}

func TestStepError_NoMessage(t *testing.T) {
	err := NewStepError(CategoryAuthFailure, "Configure", "", nil)
	assert.Equal(t, "Configure: auth_failure", err.Error())
}

// =============================================================================
// Plan Tests
// =============================================================================

func TestDeploymentPlan_StepNames(t *testing.T) {
	plan := DeploymentPlan{
		Framework: "wasp",
		Steps: []Step{
			{Name: "upload", Action: ActionUpload},
			{Name: "configure", Action: ActionConfigure},
		},
	}

	assert.Equal(t, []string{"upload", "configure"}, plan.StepNames())
	assert.False(t, plan.IsEmpty())
	assert.True(t, DeploymentPlan{}.IsEmpty())
}

// =============================================================================
// Credential Bundle Tests
// =============================================================================

func TestCredentialBundle_Fields(t *testing.T) {
	bundle := CredentialBundle{
		ProviderID: "shared_hosting",
		Fields: map[string]string{
			"host":     "ssh.example.com",
			"password": "s3cret",
			"port":     "",
		},
	}

	v, ok := bundle.Field("host")
	require.True(t, ok)
	assert.Equal(t, "ssh.example.com", v)

	// Empty values count as absent
	_, ok = bundle.Field("port")
	assert.False(t, ok)
	assert.Equal(t, "22", bundle.FieldOr("port", "22"))
	assert.Equal(t, "s3cret", bundle.FieldOr("password", ""))
}

func TestCredentialBundle_RedactedNeverExposesValues(t *testing.T) {
	bundle := CredentialBundle{
		ProviderID: "shared_hosting",
		Fields: map[string]string{
			"host":     "ssh.example.com",
			"password": "s3cret",
		},
	}

	redacted := bundle.Redacted()
	assert.Len(t, redacted, 2)
	for name, value := range redacted {
		assert.Equal(t, "[redacted]", value, "field %s leaked", name)
	}
}
