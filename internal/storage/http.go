package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

const (
	defaultTimeout    = 10 * time.Second
	maxEntryBody      = 4 << 20
	storeEntriesRoute = "/v1/store-entries"
)

// HTTPConfig configures the remote store API client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPService reads and writes store entries through the store API with a
// bearer token.
type HTTPService struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPService creates an HTTPService.
func NewHTTPService(cfg HTTPConfig, logger *slog.Logger) *HTTPService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPService{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Get issues GET {base}/v1/store-entries?key=<key>.
func (s *HTTPService) Get(ctx context.Context, key string) (*Record, error) {
	endpoint := s.baseURL + storeEntriesRoute + "?" + url.Values{"key": {key}}.Encode()
	return s.do(ctx, http.MethodGet, endpoint, key, nil)
}

// Put issues PUT {base}/v1/store-entries with the record as JSON body.
func (s *HTTPService) Put(ctx context.Context, record Record) (*Record, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStorage, "put %q: encode record: %v", record.Key, err).WithCause(err)
	}
	return s.do(ctx, http.MethodPut, s.baseURL+storeEntriesRoute, record.Key, body)
}

func (s *HTTPService) do(ctx context.Context, method, endpoint, key string, body []byte) (*Record, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, storageErr(method, key, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "store request failed",
			slog.String("method", method),
			slog.String("key", key),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return nil, storageErr(method, key, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxEntryBody))
	if err != nil {
		return nil, storageErr(method, key, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, schema.NewErrorf(schema.ErrCodeStorage, "%s %q: HTTP %d", method, key, resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": string(respBody)})
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, storageErr(method, key, "decode response", err)
	}
	if rec.Key == "" {
		rec.Key = key
	}
	return &rec, nil
}

func storageErr(method, key, op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStorage, "%s %q: %s: %v", method, key, op, err).WithCause(err)
}

var _ Service = (*HTTPService)(nil)
