package secrets

import (
	"context"
	"fmt"
	"sync"
)

// Config holds the configuration for the Manager.
type Config struct {
	// DefaultProvider is the name of the provider used when a SecretRef
	// does not name one explicitly.
	DefaultProvider string

	// AutoClear controls whether resolved secrets clear their in-process
	// copy after first use.
	AutoClear bool

	// Audit, when non-nil, receives a record of every resolution attempt.
	Audit AuditLogger
}

// Manager orchestrates secret resolution across multiple providers. It
// maintains a registry of providers and handles provider selection and
// graceful shutdown. Manager is safe for concurrent use.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	autoClear       bool
	audit           AuditLogger

	mu sync.RWMutex
}

// NewManager creates a Manager with the provided configuration.
func NewManager(config *Config) *Manager {
	if config == nil {
		config = &Config{}
	}
	return &Manager{
		providers:       make(map[string]Provider),
		defaultProvider: config.DefaultProvider,
		autoClear:       config.AutoClear,
		audit:           config.Audit,
	}
}

// RegisterProvider adds a provider to the manager's registry. Registering a
// second provider under the same name is an error.
func (m *Manager) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider with name %q already registered", name)
	}
	m.providers[name] = provider
	return nil
}

// Resolve resolves a secret using the default provider.
func (m *Manager) Resolve(ctx context.Context, ref SecretRef) (*Secret, error) {
	if m.defaultProvider == "" {
		return nil, fmt.Errorf("no default provider configured")
	}
	return m.ResolveFrom(ctx, m.defaultProvider, ref)
}

// ResolveFrom resolves a secret using a specific provider.
func (m *Manager) ResolveFrom(ctx context.Context, providerName string, ref SecretRef) (*Secret, error) {
	if providerName == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRef)
	}

	m.mu.RLock()
	provider, exists := m.providers[providerName]
	m.mu.RUnlock()

	if !exists {
		err := fmt.Errorf("provider %q not found", providerName)
		m.logAccess(ctx, "resolve", ref, false, err)
		return nil, err
	}

	secret, err := provider.Resolve(ctx, ref)
	m.logAccess(ctx, "resolve", ref, err == nil, err)

	if err != nil {
		return nil, WrapProviderError(providerName, ref, err, "failed to resolve secret")
	}
	if secret != nil {
		secret.AutoClear = m.autoClear
	}
	return secret, nil
}

// Exists checks if a secret exists using the default provider.
func (m *Manager) Exists(ctx context.Context, ref SecretRef) (bool, error) {
	if m.defaultProvider == "" {
		return false, fmt.Errorf("no default provider configured")
	}

	m.mu.RLock()
	provider, exists := m.providers[m.defaultProvider]
	m.mu.RUnlock()

	if !exists {
		return false, fmt.Errorf("provider %q not found", m.defaultProvider)
	}

	ok, err := provider.Exists(ctx, ref)
	if err != nil {
		return false, WrapProviderError(m.defaultProvider, ref, err, "failed to check existence")
	}
	return ok, nil
}

// DefaultProvider returns the name of the configured default provider.
func (m *Manager) DefaultProvider() string {
	return m.defaultProvider
}

// Close gracefully shuts down all registered providers, aggregating any
// errors.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}
	m.providers = make(map[string]Provider)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("errors during shutdown: %v", errs)
}

func (m *Manager) logAccess(ctx context.Context, op string, ref SecretRef, success bool, err error) {
	if m.audit == nil {
		return
	}
	m.audit.LogAccess(ctx, op, ref, success, err)
}
