package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

// fakeStoreAPI is an in-memory store entries API.
type fakeStoreAPI struct {
	mu      sync.Mutex
	entries map[string]any
	token   string
}

func (f *fakeStoreAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/store-entries" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		key := r.URL.Query().Get("key")
		v, ok := f.entries[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Record{Key: key, Value: v})
	case http.MethodPut:
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.entries[rec.Key] = rec.Value
		_ = json.NewEncoder(w).Encode(rec)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeStoreAPI(t *testing.T) (*HTTPService, *fakeStoreAPI) {
	t.Helper()
	api := &fakeStoreAPI{entries: make(map[string]any), token: "secret"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewHTTPService(HTTPConfig{BaseURL: srv.URL, Token: "secret"}, nil), api
}

func TestHTTPService_PutAndGet(t *testing.T) {
	svc, api := newFakeStoreAPI(t)
	ctx := context.Background()

	rec, err := svc.Put(ctx, Record{Key: "user/a&b", Value: map[string]any{"visits": 3}})
	require.NoError(t, err)
	assert.Equal(t, &Record{Key: "user/a&b", Value: map[string]any{"visits": 3.0}}, rec)
	assert.Contains(t, api.entries, "user/a&b")

	got, err := svc.Get(ctx, "user/a&b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"visits": 3.0}, got.Value)
}

func TestHTTPService_GetMissing(t *testing.T) {
	svc, _ := newFakeStoreAPI(t)

	got, err := svc.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHTTPService_Unauthorized(t *testing.T) {
	api := &fakeStoreAPI{entries: map[string]any{}, token: "secret"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL, Token: "wrong"}, nil)
	_, err := svc.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStorage, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestHTTPService_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewHTTPService(HTTPConfig{BaseURL: base}, nil).Put(context.Background(), Record{Key: "k", Value: 1})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStorage, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "request failed")
}

func TestHTTPService_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec, err := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, nil).Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
