package secrets

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

// mapStore is an in-memory SecretStore.
type mapStore struct {
	data map[string][]byte
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (m *mapStore) StoreSecret(_ context.Context, key string, value []byte) error {
	m.data[key] = bytes.Clone(value)
	return nil
}

func (m *mapStore) GetSecret(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", key)
	}
	return v, nil
}

func (m *mapStore) DeleteSecret(_ context.Context, key string) error {
	if _, ok := m.data[key]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "secret %q not found", key)
	}
	delete(m.data, key)
	return nil
}

func (m *mapStore) ListSecrets(context.Context) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func testVault(t *testing.T) (*AESVault, *mapStore) {
	t.Helper()
	s := newMapStore()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewAESVault(s, VaultConfig{MasterKey: key})
	require.NoError(t, err)
	return v, s
}

// --- Round trip ---

func TestAESVault_StoreAndResolve(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "connections/slack", []byte(`{"token":"xoxb"}`)))

	assert.NotContains(t, string(s.data["connections/slack"]), "xoxb")

	val, err := v.Resolve(ctx, "connections/slack")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"token":"xoxb"}`), val)
}

func TestAESVault_PassphraseDerivation(t *testing.T) {
	s := newMapStore()
	v, err := NewAESVault(s, VaultConfig{
		Passphrase: "my-secure-passphrase",
		Salt:       []byte("test-salt-16byte"),
		Iterations: 1000,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "k", []byte("value")))
	val, err := v.Resolve(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), val)
}

func TestAESVault_OverwriteAndEmpty(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "key", []byte("v1")))
	require.NoError(t, v.Store(ctx, "key", []byte{}))

	val, err := v.Resolve(ctx, "key")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestAESVault_UniqueNonces(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "k1", []byte("same-value")))
	require.NoError(t, v.Store(ctx, "k2", []byte("same-value")))

	assert.False(t, bytes.Equal(s.data["k1"], s.data["k2"]))
}

// --- Tampering ---

func TestAESVault_WrongKeyCannotDecrypt(t *testing.T) {
	s := newMapStore()
	ctx := context.Background()

	key2 := make([]byte, 32)
	key2[0] = 0xFF

	v1, err := NewAESVault(s, VaultConfig{MasterKey: make([]byte, 32)})
	require.NoError(t, err)
	require.NoError(t, v1.Store(ctx, "secret", []byte("hidden")))

	v2, err := NewAESVault(s, VaultConfig{MasterKey: key2})
	require.NoError(t, err)
	_, err = v2.Resolve(ctx, "secret")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeVault, schema.CodeOf(err))
}

func TestAESVault_CiphertextBoundToKey(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "connections/a", []byte("alpha")))
	s.data["connections/b"] = s.data["connections/a"]

	_, err := v.Resolve(ctx, "connections/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt failed")
}

func TestAESVault_ShortCiphertext(t *testing.T) {
	v, s := testVault(t)
	s.data["bad"] = []byte{1, 2}

	_, err := v.Resolve(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ciphertext too short")
}

// --- Store passthrough ---

func TestAESVault_DeleteAndList(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "a", []byte("1")))
	require.NoError(t, v.Store(ctx, "b", []byte("2")))
	require.NoError(t, v.Delete(ctx, "a"))

	keys, err := v.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	_, err = v.Resolve(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestAESVault_EmptyKey(t *testing.T) {
	v, _ := testVault(t)

	err := v.Store(context.Background(), "", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

// --- Configuration ---

func TestNewAESVault_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  VaultConfig
	}{
		{"short master key", VaultConfig{MasterKey: []byte("too-short")}},
		{"nothing", VaultConfig{}},
		{"passphrase without salt", VaultConfig{Passphrase: "pass"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAESVault(newMapStore(), tt.cfg)
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeVault, schema.CodeOf(err))
		})
	}

	_, err := NewAESVault(nil, VaultConfig{MasterKey: make([]byte, 32)})
	require.Error(t, err)
}
