package domain

import "time"

// =============================================================================
// Credential Bundle
// =============================================================================

// CredentialBundle holds the secret fields for one provider instance
// (host, username, password, API token, key path, ...). Bundles are owned
// by the vault; everything outside the vault sees them only in memory and
// must never log field values.
type CredentialBundle struct {
	ProviderID string            `json:"provider_id"`
	Fields     map[string]string `json:"fields"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Field returns a named secret field and whether it is present and non-empty.
func (b CredentialBundle) Field(name string) (string, bool) {
	v, ok := b.Fields[name]
	return v, ok && v != ""
}

// FieldOr returns a named field or a fallback when absent or empty.
func (b CredentialBundle) FieldOr(name, fallback string) string {
	if v, ok := b.Field(name); ok {
		return v
	}
	return fallback
}

// Redacted returns the field names with masked values, safe for logging.
func (b CredentialBundle) Redacted() map[string]string {
	out := make(map[string]string, len(b.Fields))
	for k := range b.Fields {
		out[k] = "[redacted]"
	}
	return out
}
