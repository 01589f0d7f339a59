// Package env provides a read-only secret provider backed by the process
// environment. It is the standard entry path for CI execution environments
// where an external secret store injects credential values into the job's
// environment before the pipeline starts.
package env

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
)

// Provider resolves secret references as environment variable lookups. The
// reference path is the variable name. Versions are not supported: the
// environment holds exactly one value per name.
type Provider struct {
	// lookup allows substituting os.LookupEnv in tests.
	lookup func(string) (string, bool)
}

// New creates a provider reading from the process environment.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// NewWithLookup creates a provider with a custom lookup function. Used in
// tests to avoid mutating the process environment.
func NewWithLookup(lookup func(string) (string, bool)) *Provider {
	return &Provider{lookup: lookup}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "env"
}

// HealthCheck verifies the provider is operational. The environment is
// always reachable.
func (p *Provider) HealthCheck(_ context.Context) error {
	return nil
}

// Close releases resources. The env provider holds none.
func (p *Provider) Close() error {
	return nil
}

// Resolve retrieves a secret from the environment. A versioned reference is
// rejected: the environment cannot address historical values.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve cancelled: %w", err)
	}
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: empty path", secrets.ErrInvalidRef)
	}
	if ref.Version != "" {
		return nil, fmt.Errorf("%w: env provider does not support versions", secrets.ErrInvalidRef)
	}

	value, ok := p.lookup(ref.Path)
	if !ok {
		return nil, fmt.Errorf("%w: environment variable %s is not set", secrets.ErrSecretNotFound, ref.Path)
	}

	return &secrets.Secret{
		Value:     []byte(value),
		CreatedAt: time.Now(),
	}, nil
}

// ResolveBatch retrieves multiple secrets, omitting unset variables.
func (p *Provider) ResolveBatch(ctx context.Context, refs []secrets.SecretRef) (map[string]*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve batch cancelled: %w", err)
	}

	results := make(map[string]*secrets.Secret)
	for _, ref := range refs {
		value, ok := p.lookup(ref.Path)
		if !ok {
			continue
		}
		results[ref.Path] = &secrets.Secret{
			Value:     []byte(value),
			CreatedAt: time.Now(),
		}
	}
	return results, nil
}

// Exists checks whether the environment variable is set.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("exists cancelled: %w", err)
	}
	_, ok := p.lookup(ref.Path)
	return ok, nil
}
