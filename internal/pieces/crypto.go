package pieces

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"github.com/google/uuid"

	"github.com/rendis/stepflow/pkg/schema"
)

// CryptoPieceName is the name of the built-in crypto piece.
const CryptoPieceName = "crypto"

// NewCryptoPiece creates the "crypto" piece with hash, hmac and uuid.
func NewCryptoPiece() *StaticPiece {
	return NewPiece(CryptoPieceName,
		&cryptoHashAction{},
		&cryptoHMACAction{},
		&cryptoUUIDAction{},
	)
}

// hashFunc returns a new hash.Hash for the given algorithm name.
func hashFunc(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	case "sha384":
		return sha512.New384, nil
	case "md5":
		return md5.New, nil
	case "sha1":
		return sha1.New, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported hash algorithm: %s", algorithm)
	}
}

// --- hash ---

type cryptoHashAction struct{}

func (a *cryptoHashAction) Name() string { return "hash" }

func (a *cryptoHashAction) Schema() ActionSchema {
	return ActionSchema{Description: "Compute a cryptographic hash of the input data"}
}

func (a *cryptoHashAction) Validate(props map[string]any) error {
	if _, ok := props["data"].(string); !ok {
		return schema.NewError(schema.ErrCodeValidation, "hash requires 'data' string parameter")
	}
	return nil
}

func (a *cryptoHashAction) Execute(_ context.Context, props map[string]any) (any, error) {
	algorithm := stringParam(props, "algorithm", "sha256")
	newHash, err := hashFunc(algorithm)
	if err != nil {
		return nil, err
	}

	h := newHash()
	h.Write([]byte(stringParam(props, "data", "")))
	return map[string]any{
		"hash":      hex.EncodeToString(h.Sum(nil)),
		"algorithm": algorithm,
	}, nil
}

// --- hmac ---

type cryptoHMACAction struct{}

func (a *cryptoHMACAction) Name() string { return "hmac" }

func (a *cryptoHMACAction) Schema() ActionSchema {
	return ActionSchema{Description: "Compute an HMAC of the input data using the given key"}
}

func (a *cryptoHMACAction) Validate(props map[string]any) error {
	if _, ok := props["data"].(string); !ok {
		return schema.NewError(schema.ErrCodeValidation, "hmac requires 'data' string parameter")
	}
	if _, ok := props["key"].(string); !ok {
		return schema.NewError(schema.ErrCodeValidation, "hmac requires 'key' string parameter")
	}
	return nil
}

func (a *cryptoHMACAction) Execute(_ context.Context, props map[string]any) (any, error) {
	algorithm := stringParam(props, "algorithm", "sha256")
	newHash, err := hashFunc(algorithm)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(newHash, []byte(stringParam(props, "key", "")))
	mac.Write([]byte(stringParam(props, "data", "")))
	return map[string]any{
		"hmac":      hex.EncodeToString(mac.Sum(nil)),
		"algorithm": algorithm,
	}, nil
}

// --- uuid ---

type cryptoUUIDAction struct{}

func (a *cryptoUUIDAction) Name() string { return "uuid" }

func (a *cryptoUUIDAction) Schema() ActionSchema {
	return ActionSchema{Description: "Generate a v4 UUID"}
}

func (a *cryptoUUIDAction) Validate(map[string]any) error { return nil }

func (a *cryptoUUIDAction) Execute(context.Context, map[string]any) (any, error) {
	return map[string]any{"uuid": uuid.New().String()}, nil
}
