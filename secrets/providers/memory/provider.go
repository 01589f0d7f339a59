// Package memory provides an in-memory secret provider for testing and
// development. It implements the full WriteableProvider interface with
// thread-safe operations and no persistence.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
)

// latestVersion is the version used when a reference does not name one.
const latestVersion = "latest"

// Provider implements an in-memory secret store. It provides thread-safe
// access to secrets stored in memory for the lifetime of the process.
type Provider struct {
	store map[string]map[string]*secrets.Secret
	mu    sync.RWMutex
}

// New creates an empty memory provider.
func New() *Provider {
	return &Provider{
		store: make(map[string]map[string]*secrets.Secret),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "memory"
}

// HealthCheck verifies the provider is operational. The memory provider is
// always healthy.
func (p *Provider) HealthCheck(_ context.Context) error {
	return nil
}

// Close clears all stored secrets securely.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, versions := range p.store {
		for version, secret := range versions {
			secret.Clear()
			delete(versions, version)
		}
		delete(p.store, path)
	}
	return nil
}

// Resolve retrieves a single secret by reference.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	versions, exists := p.store[ref.Path]
	if !exists {
		return nil, fmt.Errorf("%w: %s", secrets.ErrSecretNotFound, ref.Path)
	}

	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	secret, exists := versions[version]
	if !exists {
		return nil, fmt.Errorf("%w: %s@%s", secrets.ErrSecretNotFound, ref.Path, version)
	}

	return copySecret(secret), nil
}

// ResolveBatch retrieves multiple secrets, omitting missing ones.
func (p *Provider) ResolveBatch(ctx context.Context, refs []secrets.SecretRef) (map[string]*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve batch cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	results := make(map[string]*secrets.Secret)
	for _, ref := range refs {
		versions, exists := p.store[ref.Path]
		if !exists {
			continue
		}

		version := ref.Version
		if version == "" {
			version = latestVersion
		}

		secret, exists := versions[version]
		if !exists {
			continue
		}
		results[ref.Path] = copySecret(secret)
	}

	return results, nil
}

// Exists checks if a secret exists without retrieving its value.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("exists cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	versions, exists := p.store[ref.Path]
	if !exists {
		return false, nil
	}

	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	_, exists = versions[version]
	return exists, nil
}

// Store saves a secret value to the provider.
func (p *Provider) Store(ctx context.Context, ref secrets.SecretRef, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store cancelled: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store[ref.Path] == nil {
		p.store[ref.Path] = make(map[string]*secrets.Secret)
	}

	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	p.store[ref.Path][version] = &secrets.Secret{
		Value:     append([]byte(nil), value...),
		Version:   version,
		CreatedAt: time.Now(),
	}
	return nil
}

// Delete removes a secret from the provider, clearing it first.
func (p *Provider) Delete(ctx context.Context, ref secrets.SecretRef) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete cancelled: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	versions, exists := p.store[ref.Path]
	if !exists {
		return fmt.Errorf("%w: %s", secrets.ErrSecretNotFound, ref.Path)
	}

	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	secret, exists := versions[version]
	if !exists {
		return fmt.Errorf("%w: %s@%s", secrets.ErrSecretNotFound, ref.Path, version)
	}

	secret.Clear()
	delete(versions, version)
	if len(versions) == 0 {
		delete(p.store, ref.Path)
	}
	return nil
}

func copySecret(s *secrets.Secret) *secrets.Secret {
	return &secrets.Secret{
		Value:     append([]byte(nil), s.Value...),
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		AutoClear: s.AutoClear,
	}
}
