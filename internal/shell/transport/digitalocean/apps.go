// Package digitalocean provides the serverless transport for the App
// Platform API. It is the only package that talks HTTP to DigitalOcean.
package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/digitalocean/godo"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
)

// credential field names understood by the App Platform endpoint.
const (
	CredAPIToken = "api_token"
	CredRegion   = "region"
)

// defaultRegion is used when the bundle names no region.
const defaultRegion = "nyc"

// Connector returns a provider.EndpointConnector that builds App Platform
// clients from credential bundles.
func Connector(logger *slog.Logger) provider.EndpointConnector {
	return func(creds domain.CredentialBundle) (provider.Endpoint, error) {
		token := creds.FieldOr(CredAPIToken, "")
		if token == "" {
			return nil, domain.NewStepError(domain.CategoryAuthFailure, "Connect",
				"credential bundle carries no api_token", nil)
		}
		return &appsEndpoint{
			client: godo.NewFromToken(token),
			region: creds.FieldOr(CredRegion, defaultRegion),
			logger: logger.With("provider", "app_platform"),
		}, nil
	}
}

// appsEndpoint implements provider.Endpoint over the godo Apps service. One
// application maps to one App Platform app with a single service component.
type appsEndpoint struct {
	client *godo.Client
	region string
	logger *slog.Logger
}

// UploadArtifact points the app at a new source reference and lets the
// platform build it. The artifact is a clone URL with an optional "#branch"
// suffix; the branch defaults to main.
func (e *appsEndpoint) UploadArtifact(ctx context.Context, appName, artifact string) error {
	repoURL, branch := splitSourceRef(artifact)
	if repoURL == "" {
		return domain.NewStepError(domain.CategoryRemoteWrite, "UploadArtifact",
			"artifact is not a source reference", nil)
	}

	spec := &godo.AppSpec{
		Name:   appName,
		Region: e.region,
		Services: []*godo.AppServiceSpec{{
			Name: appName,
			Git: &godo.GitSourceSpec{
				RepoCloneURL: repoURL,
				Branch:       branch,
			},
			EnvironmentSlug: "node-js",
			InstanceCount:   1,
		}},
	}

	app, err := e.findApp(ctx, appName)
	if err != nil && !errors.Is(err, errAppNotFound) {
		return classifyAPI("UploadArtifact", err)
	}

	if app == nil {
		created, _, err := e.client.Apps.Create(ctx, &godo.AppCreateRequest{Spec: spec})
		if err != nil {
			return classifyAPI("UploadArtifact", err)
		}
		e.logger.Info("app created", "app_id", created.ID, "app", appName)
		return nil
	}

	// Keep environment variables applied by earlier configure calls.
	if cur := serviceSpec(app); cur != nil {
		spec.Services[0].Envs = cur.Envs
	}

	updated, _, err := e.client.Apps.Update(ctx, app.ID, &godo.AppUpdateRequest{Spec: spec})
	if err != nil {
		return classifyAPI("UploadArtifact", err)
	}
	e.logger.Info("app source updated", "app_id", updated.ID, "app", appName)
	return nil
}

// SetEnv replaces the app's runtime environment variables.
func (e *appsEndpoint) SetEnv(ctx context.Context, appName string, env map[string]string) error {
	app, err := e.findApp(ctx, appName)
	if err != nil {
		return classifyAPI("SetEnv", err)
	}

	spec := app.Spec
	svc := serviceSpec(app)
	if spec == nil || svc == nil {
		return domain.NewStepError(domain.CategoryUnknown, "SetEnv",
			fmt.Sprintf("app %s has no service component", appName), nil)
	}

	svc.Envs = appVariables(env)

	if _, _, err := e.client.Apps.Update(ctx, app.ID, &godo.AppUpdateRequest{Spec: spec}); err != nil {
		return classifyAPI("SetEnv", err)
	}
	return nil
}

// Health reports the app's live status from its active deployment phase.
func (e *appsEndpoint) Health(ctx context.Context, appName string) (domain.HealthStatus, error) {
	app, err := e.findApp(ctx, appName)
	if err != nil {
		if errors.Is(err, errAppNotFound) {
			return domain.HealthUnreachable, nil
		}
		return domain.HealthUnreachable, classifyAPI("Health", err)
	}

	if app.ActiveDeployment == nil {
		return domain.HealthDegraded, nil
	}

	switch string(app.ActiveDeployment.Phase) {
	case "ACTIVE":
		return domain.HealthHealthy, nil
	case "ERROR", "CANCELED":
		return domain.HealthUnreachable, nil
	default:
		// Building, deploying or queued.
		return domain.HealthDegraded, nil
	}
}

// =============================================================================
// Internals
// =============================================================================

var errAppNotFound = errors.New("app not found")

// findApp resolves an app by spec name, paging through the account's apps.
func (e *appsEndpoint) findApp(ctx context.Context, appName string) (*godo.App, error) {
	opt := &godo.ListOptions{PerPage: 100}
	for {
		apps, resp, err := e.client.Apps.List(ctx, opt)
		if err != nil {
			return nil, err
		}

		for _, app := range apps {
			if app.Spec != nil && app.Spec.Name == appName {
				return app, nil
			}
		}

		if resp.Links == nil || resp.Links.IsLastPage() {
			return nil, errAppNotFound
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

// serviceSpec returns the app's first service component, if any.
func serviceSpec(app *godo.App) *godo.AppServiceSpec {
	if app.Spec == nil || len(app.Spec.Services) == 0 {
		return nil
	}
	return app.Spec.Services[0]
}

// appVariables converts a settings map to App Platform variable definitions.
func appVariables(env map[string]string) []*godo.AppVariableDefinition {
	vars := make([]*godo.AppVariableDefinition, 0, len(env))
	for k, v := range env {
		vars = append(vars, &godo.AppVariableDefinition{
			Key:   k,
			Value: v,
			Scope: godo.AppVariableScope_RunAndBuildTime,
		})
	}
	return vars
}

// splitSourceRef splits "url#branch" into its parts.
func splitSourceRef(artifact string) (repoURL, branch string) {
	repoURL, branch, found := strings.Cut(artifact, "#")
	if !found || branch == "" {
		branch = "main"
	}
	return repoURL, branch
}

// classifyAPI maps godo failures onto the step failure taxonomy. Rate limit
// responses surface as provider.ErrRateLimited so the adapter backs off.
func classifyAPI(op string, err error) error {
	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return err
	}
	if errors.Is(err, errAppNotFound) {
		return domain.NewStepError(domain.CategoryUnknown, op, "application does not exist on the platform", err)
	}

	var respErr *godo.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %s", op, provider.ErrRateLimited, respErr.Message)
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return domain.NewStepError(domain.CategoryAuthFailure, op, respErr.Message, err)
		case code >= 500:
			return domain.NewStepError(domain.CategoryConnectivity, op, respErr.Message, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewStepError(domain.CategoryConnectivity, op, "API request timed out", err)
	}
	return domain.NewStepError(domain.CategoryUnknown, op, err.Error(), err)
}
