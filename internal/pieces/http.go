package pieces

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// HTTPPieceName is the name of the built-in HTTP piece.
const HTTPPieceName = "http"

// HTTPConfig configures the HTTP piece.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// NewHTTPPiece creates the "http" piece with send_request, get and post.
func NewHTTPPiece(cfg HTTPConfig) *StaticPiece {
	return NewPiece(HTTPPieceName,
		newSendRequestAction(cfg),
		&httpMethodAction{name: "get", method: http.MethodGet, inner: newSendRequestAction(cfg)},
		&httpMethodAction{name: "post", method: http.MethodPost, inner: newSendRequestAction(cfg)},
	)
}

const sendRequestInputSchema = `{
  "type": "object",
  "properties": {
    "method": {"type": "string"},
    "url": {"type": "string"},
    "headers": {"type": "object"},
    "query": {"type": "object"},
    "body": {},
    "body_encoding": {"type": "string", "enum": ["json","form","text","raw"]},
    "auth": {
      "type": "object",
      "properties": {
        "type": {"type": "string", "enum": ["bearer","basic","api_key"]},
        "token": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "header_name": {"type": "string"},
        "header_value": {"type": "string"}
      }
    },
    "timeout": {"type": "string"},
    "follow_redirects": {"type": "boolean"},
    "max_redirects": {"type": "integer"},
    "tls_skip_verify": {"type": "boolean"},
    "fail_on_error_status": {"type": "boolean"}
  },
  "required": ["url"]
}`

// --- send_request ---

type sendRequestAction struct {
	config HTTPConfig
}

func newSendRequestAction(cfg HTTPConfig) *sendRequestAction {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &sendRequestAction{config: cfg}
}

func (a *sendRequestAction) Name() string { return "send_request" }

func (a *sendRequestAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Send an HTTP request with control over method, headers, query, body, auth and redirects.",
		InputSchema: json.RawMessage(sendRequestInputSchema),
	}
}

func (a *sendRequestAction) Validate(props map[string]any) error {
	rawURL := stringParam(props, "url", "")
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "missing required param 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", rawURL)
	}
	return nil
}

func (a *sendRequestAction) Execute(ctx context.Context, props map[string]any) (any, error) {
	method := strings.ToUpper(stringParam(props, "method", http.MethodGet))
	rawURL := stringParam(props, "url", "")
	bodyEncoding := stringParam(props, "body_encoding", "json")
	followRedirects := boolParam(props, "follow_redirects", true)
	maxRedirects := intParam(props, "max_redirects", 10)
	tlsSkipVerify := boolParam(props, "tls_skip_verify", false)
	failOnErrorStatus := boolParam(props, "fail_on_error_status", false)

	timeout := a.config.DefaultTimeout
	if ts := stringParam(props, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	if q, ok := props["query"].(map[string]any); ok && len(q) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", rawURL).WithCause(err)
		}
		vals := u.Query()
		for k, v := range q {
			vals.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = vals.Encode()
		rawURL = u.String()
	}

	bodyReader, contentType, err := encodeBody(props["body"], bodyEncoding)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodePiece, "failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if hm, ok := props["headers"].(map[string]any); ok {
		for k, v := range hm {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	if auth, ok := props["auth"].(map[string]any); ok {
		applyAuth(req, auth)
	}

	// Always create a new client to avoid mutating shared state.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := &http.Client{Transport: transport}

	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if maxRedirects > 0 {
		limit := maxRedirects
		client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePiece, "request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodePiece, "failed to read response body").WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	if len(bodyBytes) > 0 {
		parsedBody = string(bodyBytes)
		if strings.Contains(respContentType, "json") {
			var jsonBody any
			if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
				parsedBody = jsonBody
			}
		}
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         parsedBody,
		"content_type": respContentType,
		"duration_ms":  durationMs,
	}

	if failOnErrorStatus && resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodePiece, "server returned %d", resp.StatusCode).
			WithDetails(result)
	}
	return result, nil
}

func encodeBody(rawBody any, encoding string) (io.Reader, string, error) {
	if rawBody == nil {
		return nil, "", nil
	}
	switch encoding {
	case "form":
		formData, ok := rawBody.(map[string]any)
		if !ok {
			return nil, "", schema.NewError(schema.ErrCodeValidation, "form body must be an object")
		}
		vals := url.Values{}
		for k, v := range formData {
			vals.Set(k, fmt.Sprintf("%v", v))
		}
		return strings.NewReader(vals.Encode()), "application/x-www-form-urlencoded", nil
	case "text":
		return strings.NewReader(fmt.Sprintf("%v", rawBody)), "text/plain", nil
	case "raw":
		return strings.NewReader(fmt.Sprintf("%v", rawBody)), "", nil
	default:
		b, err := json.Marshal(rawBody)
		if err != nil {
			return nil, "", schema.NewError(schema.ErrCodeValidation, "failed to marshal body as JSON").WithCause(err)
		}
		return strings.NewReader(string(b)), "application/json", nil
	}
}

func applyAuth(req *http.Request, auth map[string]any) {
	switch stringParam(auth, "type", "") {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+stringParam(auth, "token", ""))
	case "basic":
		req.SetBasicAuth(stringParam(auth, "username", ""), stringParam(auth, "password", ""))
	case "api_key":
		if name := stringParam(auth, "header_name", ""); name != "" {
			req.Header.Set(name, stringParam(auth, "header_value", ""))
		}
	}
}

// --- get / post ---

// httpMethodAction pins the method of send_request.
type httpMethodAction struct {
	name   string
	method string
	inner  *sendRequestAction
}

func (a *httpMethodAction) Name() string { return a.name }

func (a *httpMethodAction) Schema() ActionSchema {
	s := a.inner.Schema()
	s.Description = fmt.Sprintf("Convenience action for HTTP %s requests.", a.method)
	return s
}

func (a *httpMethodAction) Validate(props map[string]any) error {
	return a.inner.Validate(props)
}

func (a *httpMethodAction) Execute(ctx context.Context, props map[string]any) (any, error) {
	withMethod := make(map[string]any, len(props)+1)
	for k, v := range props {
		withMethod[k] = v
	}
	withMethod["method"] = a.method
	return a.inner.Execute(ctx, withMethod)
}
