package framework

import (
	"fmt"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Wasp Handler
// =============================================================================

// FrameworkWasp is the registry name of the Wasp handler.
const FrameworkWasp = "wasp"

// Wasp configuration keys.
const (
	ConfigDatabaseType  = "database_type"
	ConfigIncludeAuth   = "include_auth"
	ConfigSetupDatabase = "setup_database"
	ConfigDatabaseName  = "database_name"
	ConfigDatabaseUser  = "database_user"
)

// Database types Wasp applications can run against.
var waspDatabaseTypes = map[string]bool{
	"sqlite":     true,
	"postgresql": true,
}

// WaspHandler builds deployment plans for Wasp full-stack applications.
//
// Plan shape: upload → install-dependencies → [setup-database] → configure
// → verify. The setup-database step is emitted only when the config asks
// for it, and then a database name is mandatory - there is no best-effort
// default for database identifiers.
type WaspHandler struct{}

// NewWaspHandler creates the Wasp framework handler.
func NewWaspHandler() *WaspHandler {
	return &WaspHandler{}
}

// Name returns "wasp".
func (h *WaspHandler) Name() string {
	return FrameworkWasp
}

// BuildPlan validates the Wasp config and emits the ordered deployment plan.
func (h *WaspHandler) BuildPlan(appName string, config map[string]any) (domain.DeploymentPlan, error) {
	cfgErr := &InvalidConfigError{Framework: FrameworkWasp}

	if appName == "" {
		cfgErr.addMissing("app_name")
	}

	dbType, ok := configString(config, ConfigDatabaseType)
	if !ok {
		cfgErr.addMissing(ConfigDatabaseType)
	} else if !waspDatabaseTypes[dbType] {
		cfgErr.addInvalid(ConfigDatabaseType, fmt.Sprintf("unsupported database type %q", dbType))
	}

	includeAuth := false
	if v, present := config[ConfigIncludeAuth]; present {
		b, isBool := v.(bool)
		if !isBool {
			cfgErr.addInvalid(ConfigIncludeAuth, "must be a boolean")
		}
		includeAuth = b
	}

	setupDB, _ := configBool(config, ConfigSetupDatabase)
	dbName := ""
	if setupDB {
		var present bool
		dbName, present = configString(config, ConfigDatabaseName)
		if !present {
			cfgErr.addMissing(ConfigDatabaseName)
		}
	}

	if cfgErr.HasProblems() {
		return domain.DeploymentPlan{}, cfgErr
	}

	steps := []domain.Step{
		{
			Name:      "upload",
			Action:    domain.ActionUpload,
			Retryable: true,
			Params: map[string]string{
				"artifact": ".wasp/build",
			},
		},
		{
			Name:      "install-dependencies",
			Action:    domain.ActionInstallDependencies,
			Retryable: true,
			Params: map[string]string{
				"runtime": "node",
				"command": "npm install --production",
			},
		},
	}

	if setupDB {
		steps = append(steps, domain.Step{
			Name:   "setup-database",
			Action: domain.ActionSetupDatabase,
			Params: map[string]string{
				ConfigDatabaseType: dbType,
				ConfigDatabaseName: dbName,
				ConfigDatabaseUser: configStringOr(config, ConfigDatabaseUser, appName),
			},
		})
	}

	steps = append(steps,
		domain.Step{
			Name:      "configure",
			Action:    domain.ActionConfigure,
			Retryable: true,
			Params: map[string]string{
				ConfigDatabaseType: dbType,
				ConfigIncludeAuth:  fmt.Sprintf("%t", includeAuth),
			},
		},
		domain.Step{
			Name:      "verify",
			Action:    domain.ActionVerify,
			Retryable: true,
		},
	)

	return domain.DeploymentPlan{Framework: FrameworkWasp, Steps: steps}, nil
}

// AnalyzeRequirements checks a provider profile against Wasp's needs.
// Wasp apps are node applications with an optional relational database.
func (h *WaspHandler) AnalyzeRequirements(profile domain.ProviderProfile) CompatibilityResult {
	if !profile.SupportsRuntime("node") {
		if profile.Kind == domain.KindSharedHostingSSH {
			// Shared hosts can usually have node installed by the operator.
			return CompatibilityResult{
				Compatibility: RequiresSetup,
				Prerequisites: []string{
					"node >= 18 runtime available on the remote host",
					"npm available on the remote host",
				},
			}
		}
		return CompatibilityResult{
			Compatibility: Incompatible,
			Reason:        fmt.Sprintf("provider %s cannot run node applications", profile.ID),
		}
	}

	if !profile.SupportsRuntime("postgresql") && !profile.SupportsRuntime("sqlite") {
		return CompatibilityResult{
			Compatibility: RequiresSetup,
			Prerequisites: []string{
				"a postgresql or sqlite database reachable from the target",
			},
		}
	}

	return CompatibilityResult{Compatibility: Compatible}
}

// configStringOr reads a string key with a fallback.
func configStringOr(config map[string]any, key, fallback string) string {
	if v, ok := configString(config, key); ok {
		return v
	}
	return fallback
}
