package secrets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
)

func TestResolveEnv(t *testing.T) {
	ctx := context.Background()
	manager, provider := newManagerWithMemory(t, false)

	require.NoError(t, provider.Store(ctx, secrets.SecretRef{Path: "ci/sonar-token"}, []byte("sq-token")))
	require.NoError(t, provider.Store(ctx, secrets.SecretRef{Path: "ci/db-url"}, []byte("postgres://u:p@h/db")))

	env, values, err := secrets.ResolveEnv(ctx, manager, []secrets.EnvBinding{
		{Name: "SONAR_TOKEN", Ref: secrets.SecretRef{Path: "ci/sonar-token"}},
		{Name: "DATABASE_URL", Ref: secrets.SecretRef{Path: "ci/db-url"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "sq-token", env["SONAR_TOKEN"])
	assert.Equal(t, "postgres://u:p@h/db", env["DATABASE_URL"])
	assert.ElementsMatch(t, []string{"sq-token", "postgres://u:p@h/db"}, values)
}

func TestResolveEnvMissingSecretFailsAll(t *testing.T) {
	ctx := context.Background()
	manager, provider := newManagerWithMemory(t, false)

	require.NoError(t, provider.Store(ctx, secrets.SecretRef{Path: "ci/present"}, []byte("ok")))

	_, _, err := secrets.ResolveEnv(ctx, manager, []secrets.EnvBinding{
		{Name: "PRESENT", Ref: secrets.SecretRef{Path: "ci/present"}},
		{Name: "ABSENT", Ref: secrets.SecretRef{Path: "ci/absent"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestResolveEnvRejectsUnnamedBinding(t *testing.T) {
	manager, _ := newManagerWithMemory(t, false)

	_, _, err := secrets.ResolveEnv(context.Background(), manager, []secrets.EnvBinding{
		{Ref: secrets.SecretRef{Path: "ci/anything"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrInvalidRef)
}
