package api

import (
	"time"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/core/framework"
)

// =============================================================================
// Request Types
// =============================================================================

// DeployRequest is the request body for creating a deployment.
type DeployRequest struct {
	Framework string         `json:"framework"`
	Provider  string         `json:"provider"`
	AppName   string         `json:"app_name"`
	Config    map[string]any `json:"config"`
}

// TroubleshootRequest is the request body for classifying failure logs.
type TroubleshootRequest struct {
	Framework string `json:"framework"`
	Provider  string `json:"provider"`
	LogText   string `json:"log_text"`
}

// CredentialsRequest is the request body for storing provider credentials.
type CredentialsRequest struct {
	Fields map[string]string `json:"fields"`
}

// =============================================================================
// Response Types
// =============================================================================

// StepResultResponse is one step outcome in a deployment response.
type StepResultResponse struct {
	StepName   string `json:"step_name"`
	Outcome    string `json:"outcome"`
	Attempts   int    `json:"attempts"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// DeploymentResponse is the API view of a deployment record.
type DeploymentResponse struct {
	ID          string               `json:"id"`
	Framework   string               `json:"framework"`
	Provider    string               `json:"provider"`
	AppName     string               `json:"app_name"`
	Status      string               `json:"status"`
	Steps       []string             `json:"steps"`
	StepResults []StepResultResponse `json:"step_results"`
	StartedAt   time.Time            `json:"started_at"`
	EndedAt     time.Time            `json:"ended_at,omitempty"`
}

// TroubleshootResponse is the API view of a diagnosis.
type TroubleshootResponse struct {
	Category         string   `json:"category"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// RequirementsResponse is the API view of a compatibility analysis.
type RequirementsResponse struct {
	Framework     string   `json:"framework"`
	Provider      string   `json:"provider"`
	Compatibility string   `json:"compatibility"`
	Reason        string   `json:"reason,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// CredentialInfoResponse describes a stored bundle without exposing values.
type CredentialInfoResponse struct {
	Provider  string            `json:"provider"`
	Fields    map[string]string `json:"fields"` // values are always masked
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ErrorResponse is the error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// Conversions
// =============================================================================

func recordToResponse(record *domain.DeploymentRecord) DeploymentResponse {
	results := make([]StepResultResponse, 0, len(record.StepResults))
	for _, res := range record.StepResults {
		results = append(results, StepResultResponse{
			StepName:   res.StepName,
			Outcome:    string(res.Outcome),
			Attempts:   res.Attempts,
			Message:    res.Message,
			DurationMS: res.Duration.Milliseconds(),
		})
	}

	return DeploymentResponse{
		ID:          record.ID,
		Framework:   record.Framework,
		Provider:    record.Provider,
		AppName:     record.AppName,
		Status:      string(record.Status),
		Steps:       record.Plan.StepNames(),
		StepResults: results,
		StartedAt:   record.StartedAt,
		EndedAt:     record.EndedAt,
	}
}

func diagnosisToResponse(res domain.DiagnosisResult) TroubleshootResponse {
	return TroubleshootResponse{
		Category:         string(res.Category),
		Confidence:       res.Confidence,
		SuggestedActions: res.SuggestedActions,
	}
}

func compatibilityToResponse(frameworkName, providerID string, res framework.CompatibilityResult) RequirementsResponse {
	return RequirementsResponse{
		Framework:     frameworkName,
		Provider:      providerID,
		Compatibility: string(res.Compatibility),
		Reason:        res.Reason,
		Prerequisites: res.Prerequisites,
	}
}
