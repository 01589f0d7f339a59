package secrets

import (
	"context"
	"fmt"
)

// EnvBinding maps a resolved secret to the environment variable a stage's
// external tools read it from.
type EnvBinding struct {
	// Name is the environment variable name (e.g., "SONAR_TOKEN").
	Name string

	// Ref identifies the secret to resolve.
	Ref SecretRef

	// Provider optionally selects a specific provider; empty uses the
	// manager's default.
	Provider string
}

// ResolveEnv resolves a stage's secret bindings into an environment map.
// It returns the env map and the plain values so the caller can register
// them with an output redactor. Resolution is all-or-nothing: any missing
// secret fails the whole set, matching the pipeline's fail-fast model.
func ResolveEnv(ctx context.Context, m *Manager, bindings []EnvBinding) (map[string]string, []string, error) {
	env := make(map[string]string, len(bindings))
	values := make([]string, 0, len(bindings))

	for _, b := range bindings {
		if b.Name == "" {
			return nil, nil, fmt.Errorf("%w: binding for %q has no environment variable name", ErrInvalidRef, b.Ref.Path)
		}

		var secret *Secret
		var err error
		if b.Provider != "" {
			secret, err = m.ResolveFrom(ctx, b.Provider, b.Ref)
		} else {
			secret, err = m.Resolve(ctx, b.Ref)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("resolve %s: %w", b.Name, err)
		}

		value := secret.String()
		env[b.Name] = value
		values = append(values, value)
	}

	return env, values, nil
}
