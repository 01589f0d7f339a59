package secrets

import "context"

// Resolver defines the core interface for secret resolution.
type Resolver interface {
	// Resolve retrieves a single secret by reference.
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)

	// ResolveBatch retrieves multiple secrets in a single operation and
	// returns a map of secret paths to resolved secrets. Missing secrets
	// are omitted rather than failing the whole operation.
	ResolveBatch(ctx context.Context, refs []SecretRef) (map[string]*Secret, error)

	// Exists checks if a secret exists without retrieving its value.
	Exists(ctx context.Context, ref SecretRef) (bool, error)
}

// Provider extends Resolver with provider management capabilities. All
// secret backends must implement this interface.
type Provider interface {
	Resolver

	// Name returns the provider's identifier (e.g., "env", "awssm",
	// "memory").
	Name() string

	// HealthCheck verifies the provider's connectivity and functionality.
	HealthCheck(ctx context.Context) error

	// Close gracefully shuts down the provider and releases resources.
	Close() error
}

// WriteableProvider extends Provider with write operations. Only backends
// supporting mutation implement it; the env provider, for example, is
// read-only.
type WriteableProvider interface {
	Provider

	// Store saves a secret value to the provider.
	Store(ctx context.Context, ref SecretRef, value []byte) error

	// Delete removes a secret from the provider.
	Delete(ctx context.Context, ref SecretRef) error
}

// AuditLogger receives a record of every secret access. Implementations
// must never log secret values, only references and outcomes.
type AuditLogger interface {
	LogAccess(ctx context.Context, operation string, ref SecretRef, success bool, err error)
}
