package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hostbridge/hostbridge/internal/core/diagnose"
	"github.com/hostbridge/hostbridge/internal/core/framework"
	"github.com/hostbridge/hostbridge/internal/shell/api"
	"github.com/hostbridge/hostbridge/internal/shell/orchestrator"
	"github.com/hostbridge/hostbridge/internal/shell/provider"
	"github.com/hostbridge/hostbridge/internal/shell/store"
	"github.com/hostbridge/hostbridge/internal/shell/transport/digitalocean"
	sshtransport "github.com/hostbridge/hostbridge/internal/shell/transport/ssh"
	"github.com/hostbridge/hostbridge/internal/shell/vault"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitVaultError      = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server wires the deployment engine together behind one HTTP listener.
type Server struct {
	config     *Config
	httpServer *http.Server
	history    *store.HistoryStore
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if cfg.Vault.Passphrase == "" {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      errors.New("vault.passphrase must be set (HOSTBRIDGE_VAULT_PASSPHRASE)"),
			ExitCode: ExitConfigError,
		}
	}

	// Credential vault
	credStore, err := vault.New(vault.Config{
		Root:       cfg.Vault.Root,
		Passphrase: cfg.Vault.Passphrase,
	})
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitVaultError}
	}

	// Deployment history
	var history *store.HistoryStore
	if cfg.History.Enabled {
		history, err = store.NewHistoryStore(cfg.History.DSN)
		if err != nil {
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
		}
	} else {
		logger.Info("deployment history disabled")
	}

	// Failure classifier, with optional operator rules layered on top
	classifier := diagnose.NewDefaultClassifier()
	if cfg.Diagnose.RulesFile != "" {
		rules, err := diagnose.LoadRuleFile(cfg.Diagnose.RulesFile)
		if err != nil {
			closeAll(history)
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
		classifier, err = classifier.WithRules(rules)
		if err != nil {
			closeAll(history)
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
		logger.Info("operator diagnosis rules loaded", "file", cfg.Diagnose.RulesFile, "rules", len(rules))
	}

	// Framework handlers
	frameworks := framework.NewRegistry()
	if err := frameworks.Register(framework.NewWaspHandler()); err != nil {
		closeAll(history)
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
	}

	// Provider adapters
	providers := provider.NewRegistry()
	if cfg.Providers.SharedHosting.Enabled {
		dialer := sshtransport.NewDialer(sshtransport.Config{
			ConnectTimeout: cfg.Providers.SharedHosting.ConnectTimeout,
			CommandTimeout: cfg.Providers.SharedHosting.CommandTimeout,
		})
		adapter := provider.NewSharedHostingAdapter("shared_hosting", cfg.Providers.SharedHosting.Runtimes, dialer)
		if err := providers.Register(adapter); err != nil {
			closeAll(history)
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
	}
	if cfg.Providers.AppPlatform.Enabled {
		adapter := provider.NewServerlessAdapter("app_platform", cfg.Providers.AppPlatform.Runtimes,
			digitalocean.Connector(logger), provider.DefaultBackoffPolicy())
		if err := providers.Register(adapter); err != nil {
			closeAll(history)
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
	}
	logger.Info("providers registered", "providers", providers.IDs())

	// Orchestrator
	var opts []orchestrator.Option
	if history != nil {
		opts = append(opts, orchestrator.WithHistory(history))
	}
	engine := orchestrator.New(frameworks, providers, credStore, classifier, logger, orchestrator.Config{
		MaxRetries:        cfg.Deploy.MaxRetries,
		StepTimeout:       cfg.Deploy.StepTimeout,
		BackoffBase:       cfg.Deploy.BackoffBase,
		BackoffMultiplier: cfg.Deploy.BackoffMultiplier,
	}, opts...)

	// HTTP handler
	var historyReader api.History
	if history != nil {
		historyReader = history
	}
	handler := api.NewHandler(engine, credStore, historyReader, frameworks, providers, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		history:    history,
		logger:     logger,
	}, nil
}

func closeAll(history *store.HistoryStore) {
	if history != nil {
		history.Close()
	}
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("history close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
