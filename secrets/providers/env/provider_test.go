package env_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets/providers/env"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestResolve(t *testing.T) {
	p := env.NewWithLookup(fakeEnv(map[string]string{
		"AWS_SECRET_ACCESS_KEY": "shhh",
	}))

	secret, err := p.Resolve(context.Background(), secrets.SecretRef{Path: "AWS_SECRET_ACCESS_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "shhh", secret.String())
}

func TestResolveUnset(t *testing.T) {
	p := env.NewWithLookup(fakeEnv(nil))

	_, err := p.Resolve(context.Background(), secrets.SecretRef{Path: "MISSING_VAR"})
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestResolveRejectsVersion(t *testing.T) {
	p := env.NewWithLookup(fakeEnv(map[string]string{"X": "1"}))

	_, err := p.Resolve(context.Background(), secrets.SecretRef{Path: "X", Version: "v2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrInvalidRef)
}

func TestResolveBatchSkipsMissing(t *testing.T) {
	p := env.NewWithLookup(fakeEnv(map[string]string{"A": "1", "B": "2"}))

	results, err := p.ResolveBatch(context.Background(), []secrets.SecretRef{
		{Path: "A"}, {Path: "B"}, {Path: "C"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "1", results["A"].String())
}

func TestExists(t *testing.T) {
	p := env.NewWithLookup(fakeEnv(map[string]string{"SET": ""}))

	ok, err := p.Exists(context.Background(), secrets.SecretRef{Path: "SET"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Exists(context.Background(), secrets.SecretRef{Path: "UNSET"})
	require.NoError(t, err)
	assert.False(t, ok)
}
