package provider

import (
	"context"
	"errors"
	"time"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Serverless Endpoint Contract
// =============================================================================

// ErrRateLimited is returned (possibly wrapped) by endpoints when the
// platform rejects a call for quota reasons. The serverless adapter backs
// off and retries these within a single step.
var ErrRateLimited = errors.New("provider rate limit exceeded")

// Endpoint is the per-platform API client behind a serverless adapter. One
// endpoint instance is bound to one credential bundle. Implementations
// classify failures as *domain.StepError.
type Endpoint interface {
	// UploadArtifact pushes build output (or its source reference) to the
	// platform for the named application.
	UploadArtifact(ctx context.Context, appName, artifact string) error

	// SetEnv applies environment variables to the application. Applying
	// identical values must be a no-op on the platform.
	SetEnv(ctx context.Context, appName string, env map[string]string) error

	// Health reports the application's live status.
	Health(ctx context.Context, appName string) (domain.HealthStatus, error)
}

// EndpointConnector builds an endpoint from decrypted credentials. It is
// injected so the adapter itself never constructs HTTP clients.
type EndpointConnector func(creds domain.CredentialBundle) (Endpoint, error)

// =============================================================================
// Backoff Policy
// =============================================================================

// BackoffPolicy bounds rate-limit retries inside a serverless step. Each
// attempt is a discrete transition carrying the next delay; there is no
// unstructured retry wrapper.
type BackoffPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Multiplier  float64
}

// DefaultBackoffPolicy matches typical API platform rate-limit windows.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 4,
		Base:        500 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// next returns the delay before the given (1-based) attempt's retry.
func (p BackoffPolicy) next(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	return d
}

// =============================================================================
// Serverless Adapter
// =============================================================================

// ServerlessAdapter deploys through a platform HTTP API. Every step is a
// single API round-trip; rate-limited calls are retried with exponential
// backoff before the step is reported as failed.
//
// Dependency installation is intentionally not implemented: serverless
// platforms install dependencies in their own build pipeline.
type ServerlessAdapter struct {
	id      string
	profile domain.ProviderProfile
	connect EndpointConnector
	backoff BackoffPolicy
}

// NewServerlessAdapter creates a serverless adapter with the given identity
// and endpoint connector.
func NewServerlessAdapter(id string, runtimes []string, connect EndpointConnector, backoff BackoffPolicy) *ServerlessAdapter {
	if backoff.MaxAttempts <= 0 {
		backoff = DefaultBackoffPolicy()
	}
	return &ServerlessAdapter{
		id: id,
		profile: domain.ProviderProfile{
			ID:       id,
			Kind:     domain.KindServerlessAPI,
			Runtimes: runtimes,
		},
		connect: connect,
		backoff: backoff,
	}
}

// ID returns the registry identifier.
func (a *ServerlessAdapter) ID() string {
	return a.id
}

// Profile describes the adapter.
func (a *ServerlessAdapter) Profile() domain.ProviderProfile {
	return a.profile
}

// Upload pushes the artifact through the platform API.
func (a *ServerlessAdapter) Upload(ctx context.Context, appName, artifact string, creds domain.CredentialBundle) error {
	ep, err := a.endpoint("Upload", creds)
	if err != nil {
		return err
	}
	return a.call(ctx, "Upload", func(ctx context.Context) error {
		return ep.UploadArtifact(ctx, appName, artifact)
	})
}

// Configure applies settings as platform environment variables.
func (a *ServerlessAdapter) Configure(ctx context.Context, appName string, settings map[string]string, creds domain.CredentialBundle) error {
	ep, err := a.endpoint("Configure", creds)
	if err != nil {
		return err
	}
	return a.call(ctx, "Configure", func(ctx context.Context) error {
		return ep.SetEnv(ctx, appName, settings)
	})
}

// Verify asks the platform for the application's health.
func (a *ServerlessAdapter) Verify(ctx context.Context, appName string, creds domain.CredentialBundle) (domain.HealthStatus, error) {
	ep, err := a.endpoint("Verify", creds)
	if err != nil {
		return domain.HealthUnreachable, err
	}

	var status domain.HealthStatus
	err = a.call(ctx, "Verify", func(ctx context.Context) error {
		var healthErr error
		status, healthErr = ep.Health(ctx, appName)
		return healthErr
	})
	if err != nil {
		return domain.HealthUnreachable, err
	}
	return status, nil
}

// endpoint builds the API client for this credential bundle.
func (a *ServerlessAdapter) endpoint(op string, creds domain.CredentialBundle) (Endpoint, error) {
	ep, err := a.connect(creds)
	if err != nil {
		var stepErr *domain.StepError
		if errors.As(err, &stepErr) {
			return nil, err
		}
		return nil, domain.NewStepError(domain.CategoryAuthFailure, op, "endpoint rejected credentials", err)
	}
	return ep, nil
}

// call runs one API operation, absorbing rate-limit responses with bounded
// exponential backoff. Other failures pass through with their adapter
// classification, or as unknown when the endpoint left them untyped.
func (a *ServerlessAdapter) call(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !errors.Is(err, ErrRateLimited) {
			var stepErr *domain.StepError
			if errors.As(err, &stepErr) {
				return err
			}
			return domain.NewStepError(domain.CategoryUnknown, op, err.Error(), err)
		}

		if attempt >= a.backoff.MaxAttempts {
			return domain.NewStepError(domain.CategoryConnectivity, op,
				"rate limit retries exhausted", err)
		}

		select {
		case <-ctx.Done():
			return domain.NewStepError(domain.CategoryConnectivity, op,
				"cancelled while backing off from rate limit", ctx.Err())
		case <-time.After(a.backoff.next(attempt)):
		}
	}
}
