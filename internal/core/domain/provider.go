package domain

// =============================================================================
// Provider Kinds
// =============================================================================

// ProviderKind distinguishes how an adapter reaches its hosting backend.
type ProviderKind string

const (
	// KindServerlessAPI is a hosting platform driven through an HTTP API.
	KindServerlessAPI ProviderKind = "serverless_api"

	// KindSharedHostingSSH is a traditional shared host reached over SSH/SFTP.
	KindSharedHostingSSH ProviderKind = "shared_hosting_ssh"
)

// ProviderProfile describes a registered provider so framework handlers can
// check compatibility before any credentials are resolved or network calls
// are made.
type ProviderProfile struct {
	// ID is the registry identifier, e.g. "shared_hosting".
	ID string `json:"id"`

	// Kind is the transport family of the adapter.
	Kind ProviderKind `json:"kind"`

	// Runtimes lists the runtimes the backend can serve (e.g. "node", "php",
	// "static", "postgresql").
	Runtimes []string `json:"runtimes,omitempty"`
}

// SupportsRuntime reports whether the profile lists the given runtime.
func (p ProviderProfile) SupportsRuntime(runtime string) bool {
	for _, r := range p.Runtimes {
		if r == runtime {
			return true
		}
	}
	return false
}

// =============================================================================
// Health Status
// =============================================================================

// HealthStatus is the result of a post-deploy reachability check.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthUnreachable HealthStatus = "unreachable"
	HealthDegraded    HealthStatus = "degraded"
)
