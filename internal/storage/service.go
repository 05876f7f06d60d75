package storage

import "context"

// Record is one key/value entry of the flow store.
type Record struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Service is the key/value store used by STORAGE actions. Get returns
// (nil, nil) for a missing key. Failures are errors with code
// STORAGE_ERROR.
type Service interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, record Record) (*Record, error)
}
