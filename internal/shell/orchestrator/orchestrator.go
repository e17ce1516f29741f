// Package orchestrator drives deployments end to end: it resolves the
// framework handler and provider adapter, decrypts credentials, executes the
// plan step by step with retry on transient failures, and records every
// outcome. This is part of the Imperative Shell - the pure plan and status
// logic lives in the core packages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hostbridge/hostbridge/internal/core/domain"
	"github.com/hostbridge/hostbridge/internal/core/framework"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrDeploymentInProgress is returned when a deploy targets an
	// application that is already being deployed to the same provider.
	ErrDeploymentInProgress = errors.New("deployment already in progress")

	// ErrIncompatible is returned when requirements analysis rules the
	// provider out before any step runs.
	ErrIncompatible = errors.New("framework incompatible with provider")
)

// DeployError wraps pre-flight failures with request context. Step failures
// never surface here; they live in the returned record.
type DeployError struct {
	Op       string
	App      string
	Provider string
	Err      error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("%s %s on %s: %v", e.Op, e.App, e.Provider, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Collaborator Contracts
// =============================================================================

// CredentialSource resolves decrypted credential bundles by provider id.
type CredentialSource interface {
	Retrieve(providerID string) (domain.CredentialBundle, error)
}

// Diagnoser classifies failure log text into a diagnosis.
type Diagnoser interface {
	Classify(frameworkName, providerID, logText string) domain.DiagnosisResult
}

// HistorySink persists completed deployment records. Persistence failures
// are logged, never propagated: the deployment outcome stands regardless.
type HistorySink interface {
	SaveDeployment(ctx context.Context, record *domain.DeploymentRecord) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config tunes retry and timeout behavior for all deployments.
type Config struct {
	// MaxRetries is the number of retries after the first attempt of a
	// retryable step. Default: 3.
	MaxRetries int

	// StepTimeout bounds each attempt of each step. Default: 5 minutes.
	StepTimeout time.Duration

	// BackoffBase is the delay before the first retry. Default: 1 second.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay between retries. Default: 2.
	BackoffMultiplier float64
}

// DefaultConfig returns the retry policy used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		StepTimeout:       5 * time.Minute,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// backoff returns the delay before retry n (1-based).
func (c Config) backoff(retry int) time.Duration {
	d := c.BackoffBase
	for i := 1; i < retry; i++ {
		d = time.Duration(float64(d) * c.BackoffMultiplier)
	}
	return d
}

// =============================================================================
// Orchestrator
// =============================================================================

// DeployRequest names everything one deploy invocation needs.
type DeployRequest struct {
	Framework string
	Provider  string
	AppName   string
	Config    map[string]any
}

// Orchestrator coordinates framework handlers, provider adapters and the
// credential source. Safe for concurrent use; concurrent deploys of the same
// application to the same provider are rejected, everything else proceeds in
// parallel.
type Orchestrator struct {
	frameworks *framework.Registry
	providers  *provider.Registry
	creds      CredentialSource
	diagnoser  Diagnoser
	history    HistorySink // optional
	logger     *slog.Logger
	cfg        Config

	mu     sync.Mutex
	active map[string]struct{} // "provider/app" pairs currently deploying
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithHistory persists completed records to the given sink.
func WithHistory(sink HistorySink) Option {
	return func(o *Orchestrator) { o.history = sink }
}

// WithDiagnoser replaces the failure log classifier.
func WithDiagnoser(d Diagnoser) Option {
	return func(o *Orchestrator) { o.diagnoser = d }
}

// New creates an orchestrator.
func New(frameworks *framework.Registry, providers *provider.Registry, creds CredentialSource, diagnoser Diagnoser, logger *slog.Logger, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		frameworks: frameworks,
		providers:  providers,
		creds:      creds,
		diagnoser:  diagnoser,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		active:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Deploy runs one deployment to completion and returns its record. The
// returned error covers only pre-flight failures (unknown framework or
// provider, invalid config, incompatibility, credential failure, concurrent
// deploy); once steps start executing, failures are recorded in the record
// and Deploy returns nil.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) (*domain.DeploymentRecord, error) {
	handler, err := o.frameworks.Get(req.Framework)
	if err != nil {
		return nil, &DeployError{Op: "Deploy", App: req.AppName, Provider: req.Provider, Err: err}
	}
	adapter, err := o.providers.Get(req.Provider)
	if err != nil {
		return nil, &DeployError{Op: "Deploy", App: req.AppName, Provider: req.Provider, Err: err}
	}

	compat := handler.AnalyzeRequirements(adapter.Profile())
	if compat.Compatibility == framework.Incompatible {
		return nil, &DeployError{
			Op: "Deploy", App: req.AppName, Provider: req.Provider,
			Err: fmt.Errorf("%w: %s", ErrIncompatible, compat.Reason),
		}
	}

	plan, err := handler.BuildPlan(req.AppName, req.Config)
	if err != nil {
		return nil, &DeployError{Op: "Deploy", App: req.AppName, Provider: req.Provider, Err: err}
	}

	// The lock is keyed on the resolved adapter id, not the request string:
	// adapter lookup is case-insensitive, so two spellings of one provider
	// must contend for the same key.
	if err := o.acquire(adapter.ID(), req.AppName); err != nil {
		return nil, &DeployError{Op: "Deploy", App: req.AppName, Provider: req.Provider, Err: err}
	}
	defer o.release(adapter.ID(), req.AppName)

	creds, err := o.creds.Retrieve(adapter.ID())
	if err != nil {
		return nil, &DeployError{Op: "Deploy", App: req.AppName, Provider: req.Provider, Err: err}
	}

	record := domain.NewDeploymentRecord(handler.Name(), adapter.ID(), req.AppName, plan)
	logger := o.logger.With(
		"deployment_id", record.ID,
		"framework", record.Framework,
		"provider", record.Provider,
		"app", req.AppName,
	)
	logger.Info("deployment started", "steps", plan.StepNames())

	o.execute(ctx, record, adapter, creds, logger)

	if ender, ok := adapter.(provider.DeploymentEnder); ok {
		if err := ender.EndDeployment(req.AppName); err != nil {
			logger.Warn("deployment session cleanup failed", "error", err)
		}
	}

	record.Finish()
	logger.Info("deployment finished", "status", record.Status, "duration", record.EndedAt.Sub(record.StartedAt))

	if o.history != nil {
		if err := o.history.SaveDeployment(ctx, record); err != nil {
			logger.Warn("history save failed", "error", err)
		}
	}
	return record, nil
}

// execute runs the plan's steps in order. The first failed step halts the
// run; every later step is recorded as skipped.
func (o *Orchestrator) execute(ctx context.Context, record *domain.DeploymentRecord, adapter provider.Adapter, creds domain.CredentialBundle, logger *slog.Logger) {
	record.Begin()

	halted := ""
	for _, step := range record.Plan.Steps {
		if halted != "" {
			record.AppendResult(domain.StepResult{
				StepName: step.Name,
				Outcome:  domain.OutcomeSkipped,
				Message:  halted,
			})
			continue
		}

		// Cancellation takes effect between steps; an in-flight step always
		// runs to its own completion or timeout.
		if err := ctx.Err(); err != nil {
			halted = "deployment cancelled"
			record.AppendResult(domain.StepResult{
				StepName: step.Name,
				Outcome:  domain.OutcomeSkipped,
				Message:  halted,
			})
			continue
		}

		res := o.runStep(ctx, step, record.AppName, adapter, creds, logger)
		record.AppendResult(res)
		if res.Outcome == domain.OutcomeFailed {
			halted = fmt.Sprintf("previous step %q failed", step.Name)
		}
	}
}

// runStep executes one step with the retry policy. Only transient failures
// of steps marked retryable are attempted again.
func (o *Orchestrator) runStep(ctx context.Context, step domain.Step, appName string, adapter provider.Adapter, creds domain.CredentialBundle, logger *slog.Logger) domain.StepResult {
	maxAttempts := 1
	if step.Retryable {
		maxAttempts = 1 + o.cfg.MaxRetries
	}

	start := time.Now()
	var lastErr error

	attempt := 0
	for attempt < maxAttempts {
		attempt++

		msg, err := o.dispatch(ctx, step, appName, adapter, creds)
		if err == nil {
			logger.Info("step ok", "step", step.Name, "attempt", attempt)
			return domain.StepResult{
				StepName: step.Name,
				Outcome:  domain.OutcomeOk,
				Attempts: attempt,
				Message:  msg,
				Duration: time.Since(start),
			}
		}
		lastErr = err

		cat := domain.CategoryOf(err)
		logger.Warn("step failed", "step", step.Name, "attempt", attempt, "category", cat, "error", err)

		if !cat.Retryable() || attempt == maxAttempts {
			break
		}

		cancelled := false
		select {
		case <-ctx.Done():
			// Cancelled while backing off; the failure keeps the last word.
			cancelled = true
		case <-time.After(o.cfg.backoff(attempt)):
		}
		if cancelled {
			break
		}
	}

	return domain.StepResult{
		StepName: step.Name,
		Outcome:  domain.OutcomeFailed,
		Attempts: attempt,
		Message:  lastErr.Error(),
		Duration: time.Since(start),
	}
}

// dispatch maps a plan step onto the adapter operation that executes it,
// bounded by the per-step timeout. An optional message accompanies success.
func (o *Orchestrator) dispatch(ctx context.Context, step domain.Step, appName string, adapter provider.Adapter, creds domain.CredentialBundle) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	var msg string
	var err error

	switch step.Action {
	case domain.ActionUpload:
		err = adapter.Upload(stepCtx, appName, step.Params["artifact"], creds)

	case domain.ActionInstallDependencies:
		installer, ok := adapter.(provider.DependencyInstaller)
		if !ok {
			// The platform's own build pipeline installs dependencies.
			return "delegated to platform build", nil
		}
		err = installer.InstallDependencies(stepCtx, appName, step.Params, creds)

	case domain.ActionSetupDatabase:
		provisioner, ok := adapter.(provider.DatabaseProvisioner)
		if !ok {
			return "", domain.NewStepError(domain.CategoryDatabaseConfig, "SetupDatabase",
				fmt.Sprintf("provider %s cannot provision databases", adapter.ID()), nil)
		}
		err = provisioner.SetupDatabase(stepCtx, appName, step.Params, creds)

	case domain.ActionConfigure:
		err = adapter.Configure(stepCtx, appName, step.Params, creds)

	case domain.ActionVerify:
		var status domain.HealthStatus
		status, err = adapter.Verify(stepCtx, appName, creds)
		if err == nil {
			switch status {
			case domain.HealthUnreachable:
				err = domain.NewStepError(domain.CategoryConnectivity, "Verify",
					"application is unreachable", nil)
			case domain.HealthDegraded:
				msg = "application deployed but not yet responding"
			}
		}

	default:
		return "", domain.NewStepError(domain.CategoryUnknown, string(step.Action),
			fmt.Sprintf("plan contains unsupported action %q", step.Action), nil)
	}

	if err != nil && errors.Is(err, context.DeadlineExceeded) && domain.CategoryOf(err) == domain.CategoryUnknown {
		err = domain.NewStepError(domain.CategoryConnectivity, string(step.Action),
			fmt.Sprintf("step timed out after %v", o.cfg.StepTimeout), err)
	}
	return msg, err
}

// =============================================================================
// Analysis and Troubleshooting
// =============================================================================

// AnalyzeRequirements reports whether a framework can deploy to a provider,
// without touching credentials or the network.
func (o *Orchestrator) AnalyzeRequirements(frameworkName, providerID string) (framework.CompatibilityResult, error) {
	handler, err := o.frameworks.Get(frameworkName)
	if err != nil {
		return framework.CompatibilityResult{}, err
	}
	adapter, err := o.providers.Get(providerID)
	if err != nil {
		return framework.CompatibilityResult{}, err
	}
	return handler.AnalyzeRequirements(adapter.Profile()), nil
}

// Troubleshoot classifies failure log text for a framework/provider pair.
func (o *Orchestrator) Troubleshoot(frameworkName, providerID, logText string) domain.DiagnosisResult {
	return o.diagnoser.Classify(frameworkName, providerID, logText)
}

// =============================================================================
// Mutual Exclusion
// =============================================================================

func deployKey(providerID, appName string) string {
	return strings.ToLower(providerID) + "/" + appName
}

func (o *Orchestrator) acquire(providerID, appName string) error {
	key := deployKey(providerID, appName)

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.active[key]; busy {
		return ErrDeploymentInProgress
	}
	o.active[key] = struct{}{}
	return nil
}

func (o *Orchestrator) release(providerID, appName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, deployKey(providerID, appName))
}
