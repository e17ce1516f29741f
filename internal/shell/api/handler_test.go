package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/core/framework"
	"github.com/hostbridge/hostbridge/internal/shell/orchestrator"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
	"github.com/hostbridge/hostbridge/internal/shell/store"
	"github.com/hostbridge/hostbridge/internal/shell/vault"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeDeployer struct {
	record    *domain.DeploymentRecord
	deployErr error
	compat    framework.CompatibilityResult
	compatErr error
	diagnosis domain.DiagnosisResult
}

func (f *fakeDeployer) Deploy(ctx context.Context, req orchestrator.DeployRequest) (*domain.DeploymentRecord, error) {
	if f.deployErr != nil {
		return nil, f.deployErr
	}
	return f.record, nil
}

func (f *fakeDeployer) AnalyzeRequirements(frameworkName, providerID string) (framework.CompatibilityResult, error) {
	return f.compat, f.compatErr
}

func (f *fakeDeployer) Troubleshoot(frameworkName, providerID, logText string) domain.DiagnosisResult {
	return f.diagnosis
}

type memCreds struct {
	bundles map[string]domain.CredentialBundle
}

func newMemCreds() *memCreds {
	return &memCreds{bundles: make(map[string]domain.CredentialBundle)}
}

func (m *memCreds) Save(providerID string, fields map[string]string) error {
	now := time.Now().UTC()
	created := now
	if prev, ok := m.bundles[providerID]; ok {
		created = prev.CreatedAt
	}
	m.bundles[providerID] = domain.CredentialBundle{
		ProviderID: providerID,
		Fields:     fields,
		CreatedAt:  created,
		UpdatedAt:  now,
	}
	return nil
}

func (m *memCreds) Retrieve(providerID string) (domain.CredentialBundle, error) {
	b, ok := m.bundles[providerID]
	if !ok {
		return domain.CredentialBundle{}, vault.ErrNotFound
	}
	return b, nil
}

func (m *memCreds) Delete(providerID string) error {
	delete(m.bundles, providerID)
	return nil
}

func (m *memCreds) ListProviders() ([]string, error) {
	ids := make([]string, 0, len(m.bundles))
	for id := range m.bundles {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeHistory struct {
	records map[string]*domain.DeploymentRecord
}

func (f *fakeHistory) GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, store.NewStoreError("GetDeployment", id, "deployment not found", store.ErrNotFound)
	}
	return r, nil
}

func (f *fakeHistory) ListDeployments(ctx context.Context, opts store.ListOptions) ([]domain.DeploymentRecord, error) {
	out := make([]domain.DeploymentRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeHistory) ListDeploymentsByApp(ctx context.Context, appName string, opts store.ListOptions) ([]domain.DeploymentRecord, error) {
	var out []domain.DeploymentRecord
	for _, r := range f.records {
		if r.AppName == appName {
			out = append(out, *r)
		}
	}
	return out, nil
}

// =============================================================================
// Harness
// =============================================================================

func succeededRecord() *domain.DeploymentRecord {
	plan := domain.DeploymentPlan{Framework: "wasp", Steps: []domain.Step{
		{Name: "upload", Action: domain.ActionUpload, Retryable: true},
	}}
	record := domain.NewDeploymentRecord("wasp", "shared_hosting", "task-manager", plan)
	record.Begin()
	record.AppendResult(domain.StepResult{StepName: "upload", Outcome: domain.OutcomeOk, Attempts: 1})
	record.Finish()
	return record
}

func newTestHandler(deployer Deployer, creds CredentialStore, history History) http.Handler {
	frameworks := framework.NewRegistry()
	_ = frameworks.Register(framework.NewWaspHandler())
	providers := provider.NewRegistry()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(deployer, creds, history, frameworks, providers, logger).Routes()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(&fakeDeployer{}, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCreateDeployment_Success(t *testing.T) {
	deployer := &fakeDeployer{record: succeededRecord()}
	handler := newTestHandler(deployer, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/deployments", DeployRequest{
		Framework: "wasp",
		Provider:  "shared_hosting",
		AppName:   "task-manager",
		Config:    map[string]any{"database_type": "sqlite"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp DeploymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp.Status)
	assert.Equal(t, []string{"upload"}, resp.Steps)
}

func TestCreateDeployment_MissingFields(t *testing.T) {
	handler := newTestHandler(&fakeDeployer{}, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/deployments", DeployRequest{Framework: "wasp"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDeployment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"in progress", orchestrator.ErrDeploymentInProgress, http.StatusConflict, "deployment_in_progress"},
		{"incompatible", orchestrator.ErrIncompatible, http.StatusConflict, "incompatible"},
		{"unknown framework", framework.ErrUnknownFramework, http.StatusNotFound, "unknown_framework"},
		{"unknown provider", provider.ErrUnknownProvider, http.StatusNotFound, "unknown_provider"},
		{"invalid config", &framework.InvalidConfigError{Framework: "wasp", Missing: []string{"database_type"}}, http.StatusBadRequest, "invalid_config"},
		{"missing credentials", vault.ErrNotFound, http.StatusBadRequest, "credentials_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(&fakeDeployer{deployErr: tt.err}, newMemCreds(), nil)

			rec := doJSON(t, handler, http.MethodPost, "/api/v1/deployments", DeployRequest{
				Framework: "wasp", Provider: "shared_hosting", AppName: "app",
			})
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestGetDeployment_FromHistory(t *testing.T) {
	record := succeededRecord()
	history := &fakeHistory{records: map[string]*domain.DeploymentRecord{record.ID: record}}
	handler := newTestHandler(&fakeDeployer{}, newMemCreds(), history)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/deployments/"+record.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/deployments/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDeployment_HistoryDisabled(t *testing.T) {
	handler := newTestHandler(&fakeDeployer{}, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/deployments/some-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "history_disabled")
}

func TestTroubleshoot(t *testing.T) {
	deployer := &fakeDeployer{diagnosis: domain.DiagnosisResult{
		Category:         domain.DiagnosisAuthFailure,
		Confidence:       0.9,
		SuggestedActions: []string{"Check the stored credentials"},
	}}
	handler := newTestHandler(deployer, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/troubleshoot", TroubleshootRequest{
		Framework: "wasp", Provider: "shared_hosting", LogText: "auth failed",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TroubleshootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "auth_failure", resp.Category)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/troubleshoot", TroubleshootRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequirements(t *testing.T) {
	deployer := &fakeDeployer{compat: framework.CompatibilityResult{
		Compatibility: framework.RequiresSetup,
		Prerequisites: []string{"node runtime"},
	}}
	handler := newTestHandler(deployer, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/requirements?framework=wasp&provider=shared_hosting", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "requires_setup")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/requirements?framework=wasp", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCredentials_Lifecycle(t *testing.T) {
	creds := newMemCreds()
	handler := newTestHandler(&fakeDeployer{}, creds, nil)

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/credentials/shared_hosting", CredentialsRequest{
		Fields: map[string]string{"host": "shared.example.com", "password": "s3cret"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credentials/shared_hosting", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info CredentialInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "[redacted]", info.Fields["password"], "secret values never leave the process")
	assert.NotContains(t, rec.Body.String(), "s3cret")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credentials/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shared_hosting")

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/credentials/shared_hosting", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credentials/shared_hosting", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentials_SaveRequiresFields(t *testing.T) {
	handler := newTestHandler(&fakeDeployer{}, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/credentials/shared_hosting", CredentialsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFrameworks(t *testing.T) {
	handler := newTestHandler(&fakeDeployer{}, newMemCreds(), nil)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/frameworks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wasp")
}
