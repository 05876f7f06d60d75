package connections

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

// memVault is a plaintext in-memory secrets.Vault.
type memVault struct {
	data map[string][]byte
	err  error
}

func newMemVault() *memVault {
	return &memVault{data: make(map[string][]byte)}
}

func (v *memVault) Resolve(_ context.Context, key string) ([]byte, error) {
	if v.err != nil {
		return nil, v.err
	}
	b, ok := v.data[key]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", key)
	}
	return b, nil
}

func (v *memVault) Store(_ context.Context, key string, value []byte) error {
	v.data[key] = value
	return nil
}

func (v *memVault) Delete(_ context.Context, key string) error {
	delete(v.data, key)
	return nil
}

func (v *memVault) List(context.Context) ([]string, error) {
	keys := make([]string, 0, len(v.data))
	for k := range v.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestVaultService_SaveAndObtain(t *testing.T) {
	v := newMemVault()
	svc := NewVaultService(v)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "github", map[string]any{"token": "ghp", "scopes": []string{"repo"}}))
	assert.Contains(t, v.data, "connections/github")

	conn, err := svc.Obtain(ctx, "github")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "github", conn.Name)
	assert.Equal(t, map[string]any{"token": "ghp", "scopes": []any{"repo"}}, conn.Value)

	require.NoError(t, svc.Remove(ctx, "github"))
	conn, err = svc.Obtain(ctx, "github")
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.Equal(t, schema.ErrCodeConnection, schema.CodeOf(err))
	assert.Contains(t, err.Error(), `connection "github" not found`)
}

func TestVaultService_Errors(t *testing.T) {
	ctx := context.Background()

	v := newMemVault()
	v.data["connections/broken"] = []byte("{not json")
	svc := NewVaultService(v)

	_, err := svc.Obtain(ctx, "broken")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConnection, schema.CodeOf(err))

	_, err = svc.Obtain(ctx, "")
	require.Error(t, err)

	v.err = errors.New("disk on fire")
	_, err = svc.Obtain(ctx, "any")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConnection, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "disk on fire")

	err = svc.Save(ctx, "bad", make(chan int))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}
