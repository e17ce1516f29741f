// Package api provides the HTTP surface of the deployment engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/core/framework"
	"github.com/hostbridge/hostbridge/internal/shell/orchestrator"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
	"github.com/hostbridge/hostbridge/internal/shell/store"
	"github.com/hostbridge/hostbridge/internal/shell/vault"
)

// =============================================================================
// Collaborator Contracts
// =============================================================================

// Deployer runs deployments and answers analysis questions.
type Deployer interface {
	Deploy(ctx context.Context, req orchestrator.DeployRequest) (*domain.DeploymentRecord, error)
	AnalyzeRequirements(frameworkName, providerID string) (framework.CompatibilityResult, error)
	Troubleshoot(frameworkName, providerID, logText string) domain.DiagnosisResult
}

// CredentialStore manages encrypted provider credentials.
type CredentialStore interface {
	Save(providerID string, fields map[string]string) error
	Retrieve(providerID string) (domain.CredentialBundle, error)
	Delete(providerID string) error
	ListProviders() ([]string, error)
}

// History reads back persisted deployment records.
type History interface {
	GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error)
	ListDeployments(ctx context.Context, opts store.ListOptions) ([]domain.DeploymentRecord, error)
	ListDeploymentsByApp(ctx context.Context, appName string, opts store.ListOptions) ([]domain.DeploymentRecord, error)
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	deployer   Deployer
	creds      CredentialStore
	history    History // optional
	frameworks *framework.Registry
	providers  *provider.Registry
	logger     *slog.Logger
}

// NewHandler creates a new API handler. history may be nil when persistence
// is disabled.
func NewHandler(deployer Deployer, creds CredentialStore, history History, frameworks *framework.Registry, providers *provider.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deployer:   deployer,
		creds:      creds,
		history:    history,
		frameworks: frameworks,
		providers:  providers,
		logger:     logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)

	// Health endpoint
	r.Get("/health", h.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", h.handleCreateDeployment)
			r.Get("/", h.handleListDeployments)
			r.Get("/{id}", h.handleGetDeployment)
		})

		r.Post("/troubleshoot", h.handleTroubleshoot)
		r.Get("/requirements", h.handleRequirements)

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/", h.handleListCredentials)
			r.Put("/{provider}", h.handleSaveCredentials)
			r.Get("/{provider}", h.handleGetCredentials)
			r.Delete("/{provider}", h.handleDeleteCredentials)
		})

		r.Get("/frameworks", h.handleListFrameworks)
		r.Get("/providers", h.handleListProviders)
	})

	return r
}

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handler
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Framework == "" || req.Provider == "" || req.AppName == "" {
		h.writeError(w, http.StatusBadRequest, "framework, provider and app_name are required", "validation_error")
		return
	}

	record, err := h.deployer.Deploy(r.Context(), orchestrator.DeployRequest{
		Framework: req.Framework,
		Provider:  req.Provider,
		AppName:   req.AppName,
		Config:    req.Config,
	})
	if err != nil {
		h.writeDeployError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, recordToResponse(record))
}

// writeDeployError maps pre-flight deploy failures to HTTP responses.
func (h *Handler) writeDeployError(w http.ResponseWriter, err error) {
	var cfgErr *framework.InvalidConfigError

	switch {
	case errors.Is(err, orchestrator.ErrDeploymentInProgress):
		h.writeError(w, http.StatusConflict, err.Error(), "deployment_in_progress")
	case errors.Is(err, orchestrator.ErrIncompatible):
		h.writeError(w, http.StatusConflict, err.Error(), "incompatible")
	case errors.Is(err, framework.ErrUnknownFramework):
		h.writeError(w, http.StatusNotFound, err.Error(), "unknown_framework")
	case errors.Is(err, provider.ErrUnknownProvider):
		h.writeError(w, http.StatusNotFound, err.Error(), "unknown_provider")
	case errors.As(err, &cfgErr):
		h.writeError(w, http.StatusBadRequest, cfgErr.Error(), "invalid_config")
	case errors.Is(err, vault.ErrNotFound):
		h.writeError(w, http.StatusBadRequest, "no credentials stored for provider", "credentials_not_found")
	default:
		h.logger.Error("deployment failed before execution", "error", err)
		h.writeError(w, http.StatusInternalServerError, "deployment failed", "internal_error")
	}
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "deployment history is disabled", "history_disabled")
		return
	}

	id := chi.URLParam(r, "id")
	record, err := h.history.GetDeployment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "deployment_not_found")
			return
		}
		h.logger.Error("failed to get deployment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, recordToResponse(record))
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "deployment history is disabled", "history_disabled")
		return
	}

	opts := store.ListOptions{}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}

	var records []domain.DeploymentRecord
	var err error
	if app := r.URL.Query().Get("app"); app != "" {
		records, err = h.history.ListDeploymentsByApp(r.Context(), app, opts)
	} else {
		records, err = h.history.ListDeployments(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list deployments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	responses := make([]DeploymentResponse, 0, len(records))
	for i := range records {
		responses = append(responses, recordToResponse(&records[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// =============================================================================
// Analysis Handlers
// =============================================================================

func (h *Handler) handleTroubleshoot(w http.ResponseWriter, r *http.Request) {
	var req TroubleshootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.LogText == "" {
		h.writeError(w, http.StatusBadRequest, "log_text is required", "validation_error")
		return
	}

	res := h.deployer.Troubleshoot(req.Framework, req.Provider, req.LogText)
	h.writeJSON(w, http.StatusOK, diagnosisToResponse(res))
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	frameworkName := r.URL.Query().Get("framework")
	providerID := r.URL.Query().Get("provider")
	if frameworkName == "" || providerID == "" {
		h.writeError(w, http.StatusBadRequest, "framework and provider are required", "validation_error")
		return
	}

	res, err := h.deployer.AnalyzeRequirements(frameworkName, providerID)
	if err != nil {
		switch {
		case errors.Is(err, framework.ErrUnknownFramework):
			h.writeError(w, http.StatusNotFound, err.Error(), "unknown_framework")
		case errors.Is(err, provider.ErrUnknownProvider):
			h.writeError(w, http.StatusNotFound, err.Error(), "unknown_provider")
		default:
			h.logger.Error("requirements analysis failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "analysis failed", "internal_error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, compatibilityToResponse(frameworkName, providerID, res))
}

// =============================================================================
// Credential Handlers
// =============================================================================

func (h *Handler) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if len(req.Fields) == 0 {
		h.writeError(w, http.StatusBadRequest, "fields are required", "validation_error")
		return
	}

	if err := h.creds.Save(providerID, req.Fields); err != nil {
		if errors.Is(err, vault.ErrInvalidProviderID) {
			h.writeError(w, http.StatusBadRequest, "invalid provider id", "validation_error")
			return
		}
		h.logger.Error("failed to save credentials", "provider", providerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save credentials", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")

	bundle, err := h.creds.Retrieve(providerID)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "no credentials stored", "credentials_not_found")
			return
		}
		h.logger.Error("failed to read credentials", "provider", providerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read credentials", "internal_error")
		return
	}

	// Secret values never leave the process.
	h.writeJSON(w, http.StatusOK, CredentialInfoResponse{
		Provider:  bundle.ProviderID,
		Fields:    bundle.Redacted(),
		CreatedAt: bundle.CreatedAt,
		UpdatedAt: bundle.UpdatedAt,
	})
}

func (h *Handler) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider")

	if err := h.creds.Delete(providerID); err != nil {
		h.logger.Error("failed to delete credentials", "provider", providerID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete credentials", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	ids, err := h.creds.ListProviders()
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list credentials", "internal_error")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.writeJSON(w, http.StatusOK, ids)
}

// =============================================================================
// Catalog Handlers
// =============================================================================

func (h *Handler) handleListFrameworks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.frameworks.Names())
}

func (h *Handler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	profiles := make([]domain.ProviderProfile, 0)
	for _, id := range h.providers.IDs() {
		if a, err := h.providers.Get(id); err == nil {
			profiles = append(profiles, a.Profile())
		}
	}
	h.writeJSON(w, http.StatusOK, profiles)
}

// =============================================================================
// Response Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
