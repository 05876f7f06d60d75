package connections

import (
	"context"
	"encoding/json"

	"github.com/rendis/stepflow/internal/secrets"
	"github.com/rendis/stepflow/pkg/schema"
)

const vaultKeyPrefix = "connections/"

// VaultKey returns the vault key holding the named connection.
func VaultKey(name string) string {
	return vaultKeyPrefix + name
}

// VaultService keeps connection values JSON-encoded in a secret vault.
type VaultService struct {
	vault secrets.Vault
}

// NewVaultService creates a VaultService.
func NewVaultService(v secrets.Vault) *VaultService {
	return &VaultService{vault: v}
}

// Obtain decrypts and decodes the named connection.
func (s *VaultService) Obtain(ctx context.Context, name string) (*Connection, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeConnection, "connection name is empty")
	}
	raw, err := s.vault.Resolve(ctx, VaultKey(name))
	if err != nil {
		if schema.CodeOf(err) == schema.ErrCodeNotFound {
			return nil, NotFound(name)
		}
		return nil, connErr(name, "resolve secret", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, connErr(name, "decode secret", err)
	}
	return &Connection{Name: name, Value: value}, nil
}

// Save stores value as the named connection, replacing any previous value.
func (s *VaultService) Save(ctx context.Context, name string, value any) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "connection name is empty")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "connection %q value is not JSON-serializable: %v", name, err).WithCause(err)
	}
	return s.vault.Store(ctx, VaultKey(name), raw)
}

// Remove deletes the named connection.
func (s *VaultService) Remove(ctx context.Context, name string) error {
	return s.vault.Delete(ctx, VaultKey(name))
}

var _ Service = (*VaultService)(nil)
