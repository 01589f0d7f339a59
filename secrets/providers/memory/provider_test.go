package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets/providers/memory"
)

func TestStoreAndResolve(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	ref := secrets.SecretRef{Path: "db/password"}
	require.NoError(t, p.Store(ctx, ref, []byte("value-1")))

	secret, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "value-1", secret.String())
}

func TestResolveReturnsCopy(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	ref := secrets.SecretRef{Path: "db/password"}
	require.NoError(t, p.Store(ctx, ref, []byte("original")))

	first, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	first.Value[0] = 'X'

	second, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "original", second.String())
}

func TestVersionedResolve(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "key", Version: "v1"}, []byte("one")))
	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "key", Version: "v2"}, []byte("two")))

	secret, err := p.Resolve(ctx, secrets.SecretRef{Path: "key", Version: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "two", secret.String())

	_, err = p.Resolve(ctx, secrets.SecretRef{Path: "key", Version: "v9"})
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	ref := secrets.SecretRef{Path: "ephemeral"}
	require.NoError(t, p.Store(ctx, ref, []byte("gone soon")))
	require.NoError(t, p.Delete(ctx, ref))

	_, err := p.Resolve(ctx, ref)
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	exists, err := p.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCloseClearsStore(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "a"}, []byte("1")))
	require.NoError(t, p.Close())

	_, err := p.Resolve(ctx, secrets.SecretRef{Path: "a"})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestResolveBatch(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "a"}, []byte("1")))
	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "b"}, []byte("2")))

	results, err := p.ResolveBatch(ctx, []secrets.SecretRef{
		{Path: "a"}, {Path: "b"}, {Path: "missing"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
