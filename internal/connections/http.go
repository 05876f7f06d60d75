package connections

import (
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
	defaultTimeout      = 10 * time.Second
	maxConnectionBody   = 1 << 20
	appConnectionsRoute = "/v1/app-connections/"
)

// HTTPConfig configures the remote connections API client.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPService fetches connections from the connections API with a bearer
// token.
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

// Obtain issues GET {base}/v1/app-connections/{name}. A 404 is reported as
// a missing connection.
func (s *HTTPService) Obtain(ctx context.Context, name string) (*Connection, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeConnection, "connection name is empty")
	}

	endpoint := s.baseURL + appConnectionsRoute + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, connErr(name, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "connection request failed",
			slog.String("connection", name),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return nil, connErr(name, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConnectionBody))
	if err != nil {
		return nil, connErr(name, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		s.logger.DebugContext(ctx, "connection not found", slog.String("connection", name))
		return nil, NotFound(name)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, schema.NewErrorf(schema.ErrCodeConnection,
			"obtain connection %q: HTTP %d", name, resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": string(body)})
	}

	var conn Connection
	if err := json.Unmarshal(body, &conn); err != nil {
		return nil, connErr(name, "decode response", err)
	}
	if conn.Name == "" {
		conn.Name = name
	}
	return &conn, nil
}

func connErr(name, op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeConnection, "obtain connection %q: %s: %v", name, op, err).WithCause(err)
}

var _ Service = (*HTTPService)(nil)

