package diagnose

import "github.com/hostbridge/hostbridge/internal/core/domain"

// builtinRules is the default signature set. Provider- and framework-scoped
// rules come first so the same raw substring can classify differently per
// context: "permission denied" on a shared host is a filesystem permission
// problem, while an API platform saying the same thing rejected the token.
func builtinRules() []Rule {
	return []Rule{
		// Shared hosting (SSH) signatures
		{
			ID:         "ssh-connect-failed",
			Provider:   "shared_hosting",
			Pattern:    `ssh: connect to host|connection reset by peer`,
			Category:   domain.DiagnosisNetworkUnreachable,
			Confidence: 0.9,
			Suggestions: []string{
				"Verify the SSH hostname and port in the stored credentials",
				"Check that the host accepts SSH connections from this network",
			},
		},
		{
			ID:         "ssh-auth-rejected",
			Provider:   "shared_hosting",
			Pattern:    `ssh: handshake failed|unable to authenticate|auth fail`,
			Category:   domain.DiagnosisAuthFailure,
			Confidence: 0.9,
			Suggestions: []string{
				"Re-enter the SSH password or key for this provider",
				"Confirm the account is not locked on the hosting panel",
			},
		},
		{
			ID:         "ssh-permission-denied",
			Provider:   "shared_hosting",
			Pattern:    `permission denied|EACCES`,
			Category:   domain.DiagnosisPermissionDenied,
			Confidence: 0.85,
			Suggestions: []string{
				"Check file ownership and permissions under the deploy directory",
				"Confirm the SSH user may write to the configured remote root",
			},
		},

		// Serverless API signatures
		{
			ID:         "api-token-rejected",
			Provider:   "app_platform",
			Pattern:    `not authorized|invalid token|permission denied|401|403`,
			Category:   domain.DiagnosisAuthFailure,
			Confidence: 0.9,
			Suggestions: []string{
				"Regenerate the API token and store it again",
				"Confirm the token has deploy scope for this application",
			},
		},
		{
			ID:         "api-rate-limited",
			Provider:   "app_platform",
			Pattern:    `rate limit exceeded|too many requests|429`,
			Category:   domain.DiagnosisNetworkUnreachable,
			Confidence: 0.85,
			Suggestions: []string{
				"Wait for the provider rate limit window to pass and retry",
			},
		},

		// Wasp framework signatures
		{
			ID:         "wasp-module-missing",
			Framework:  "wasp",
			Pattern:    `cannot find module|spawn wasp ENOENT`,
			Category:   domain.DiagnosisDependencyMissing,
			Confidence: 0.9,
			Suggestions: []string{
				"Run npm install in the project before deploying",
				"Confirm the wasp CLI is installed and on PATH",
			},
		},
		{
			ID:         "wasp-database-url",
			Framework:  "wasp",
			Pattern:    `DATABASE_URL`,
			Category:   domain.DiagnosisDatabaseConfigError,
			Confidence: 0.85,
			Suggestions: []string{
				"Set DATABASE_URL in the deployment configuration",
				"Confirm the database name and user match the provisioned database",
			},
		},

		// Generic keyword rules (lower confidence)
		{
			ID:         "generic-auth",
			Pattern:    `authentication failed|invalid credentials|login incorrect`,
			Category:   domain.DiagnosisAuthFailure,
			Confidence: 0.6,
			Suggestions: []string{
				"Verify the stored credentials for this provider",
			},
		},
		{
			ID:         "generic-network",
			Pattern:    `ECONNREFUSED|connection refused|network is unreachable|timed? ?out`,
			Category:   domain.DiagnosisNetworkUnreachable,
			Confidence: 0.6,
			Suggestions: []string{
				"Check network connectivity to the hosting backend",
				"Retry the deployment once the target is reachable",
			},
		},
		{
			ID:         "generic-dependency",
			Pattern:    `npm ERR!|command not found`,
			Category:   domain.DiagnosisDependencyMissing,
			Confidence: 0.6,
			Suggestions: []string{
				"Check package.json and reinstall dependencies",
				"Make sure required tooling exists on the target",
			},
		},
		{
			ID:         "generic-database",
			Pattern:    `database .* does not exist|role .* does not exist|access denied for user`,
			Category:   domain.DiagnosisDatabaseConfigError,
			Confidence: 0.6,
			Suggestions: []string{
				"Confirm the database and database user exist on the target",
				"Re-run the deployment with setup_database enabled",
			},
		},
	}
}

// genericSuggestions is returned with Unknown when no rule matches.
var genericSuggestions = []string{
	"Check network connectivity to the hosting backend",
	"Verify the stored credentials for this provider",
	"Check the provider dashboard for quota or account issues",
}
