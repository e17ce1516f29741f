package domain

// =============================================================================
// Diagnosis
// =============================================================================

// DiagnosisCategory is a known class of deployment failure.
type DiagnosisCategory string

const (
	DiagnosisAuthFailure         DiagnosisCategory = "auth_failure"
	DiagnosisNetworkUnreachable  DiagnosisCategory = "network_unreachable"
	DiagnosisDependencyMissing   DiagnosisCategory = "dependency_missing"
	DiagnosisDatabaseConfigError DiagnosisCategory = "database_config_error"
	DiagnosisPermissionDenied    DiagnosisCategory = "permission_denied"
	DiagnosisUnknown             DiagnosisCategory = "unknown"
)

// DiagnosisResult is the classified cause of a deployment failure together
// with remediation suggestions, ordered most relevant first.
type DiagnosisResult struct {
	Category DiagnosisCategory `json:"category"`

	// Confidence is in [0, 1]; exact signature matches score higher than
	// generic keyword matches.
	Confidence float64 `json:"confidence"`

	SuggestedActions []string `json:"suggested_actions"`
}
