// Package provider implements the hosting provider adapters. This is part of
// the Imperative Shell - adapters drive remote targets through injected
// transports (API endpoints, SSH sessions); they never construct raw sockets
// or HTTP clients themselves.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Adapter Interface
// =============================================================================

// Adapter executes provider-specific deployment operations. Implementations
// must classify every failure as a *domain.StepError so the orchestrator can
// apply the retry policy.
type Adapter interface {
	// ID returns the registry identifier, e.g. "shared_hosting".
	ID() string

	// Profile describes the adapter for compatibility analysis.
	Profile() domain.ProviderProfile

	// Upload transfers build output to the target.
	Upload(ctx context.Context, appName, artifact string, creds domain.CredentialBundle) error

	// Configure applies environment/runtime settings. Re-applying identical
	// settings must produce no observable change.
	Configure(ctx context.Context, appName string, settings map[string]string, creds domain.CredentialBundle) error

	// Verify performs a post-deploy reachability check.
	Verify(ctx context.Context, appName string, creds domain.CredentialBundle) (domain.HealthStatus, error)
}

// DependencyInstaller is implemented by adapters whose targets install
// application dependencies explicitly. Platforms with managed build
// pipelines omit it; the orchestrator then records the step as delegated.
type DependencyInstaller interface {
	InstallDependencies(ctx context.Context, appName string, params map[string]string, creds domain.CredentialBundle) error
}

// DatabaseProvisioner is implemented by adapters that can set up databases
// on the target.
type DatabaseProvisioner interface {
	SetupDatabase(ctx context.Context, appName string, params map[string]string, creds domain.CredentialBundle) error
}

// DeploymentEnder is implemented by adapters holding per-deployment
// resources (an SSH session, for one). The orchestrator calls EndDeployment
// exactly once after the last step of a deployment.
type DeploymentEnder interface {
	EndDeployment(appName string) error
}

// =============================================================================
// Registry
// =============================================================================

var (
	// ErrUnknownProvider is returned when no adapter is registered for an id.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrDuplicateProvider is returned when an id is registered twice.
	ErrDuplicateProvider = errors.New("provider already registered")
)

// Registry holds the available provider adapters, keyed by id. It replaces
// provider-name branching in the orchestrator.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own id. Ids are case-insensitive.
func (r *Registry) Register(a Adapter) error {
	id := strings.ToLower(a.ID())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, id)
	}
	r.adapters[id] = a
	return nil
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[strings.ToLower(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return a, nil
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
