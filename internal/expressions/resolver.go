package expressions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rendis/stepflow/internal/connections"
	"github.com/rendis/stepflow/internal/state"
	"github.com/rendis/stepflow/pkg/schema"
)

const (
	tokenOpen  = "${"
	tokenClose = '}'

	namespaceConfigs     = schema.NamespaceConfigs
	namespaceConnections = schema.NamespaceConnections
)

// Resolver resolves ${...} template tokens in action settings against an
// ExecutionState projection.
//
// Resolution never fails on missing data: a missing path resolves to "",
// an empty token ${} resolves to "" and an unterminated token is kept as
// literal text. The only error source is the connections lookup.
type Resolver struct {
	connections connections.Service
	logger      *slog.Logger
}

// NewResolver creates a Resolver. conns may be nil, in which case any
// ${connections...} reference fails.
func NewResolver(conns connections.Service, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{connections: conns, logger: logger}
}

// Resolve returns a deep copy of input with every string resolved. The
// caller's input is never mutated.
func (r *Resolver) Resolve(ctx context.Context, input any, scope state.Projection) (any, error) {
	res := &resolution{
		ctx:     ctx,
		r:       r,
		scope:   scope,
		fetched: make(map[string]any),
	}
	return res.walk(input)
}

// ResolveMap is Resolve for object-shaped settings.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]any, scope state.Projection) (map[string]any, error) {
	if input == nil {
		return map[string]any{}, nil
	}
	out, err := r.Resolve(ctx, input, scope)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// resolution carries the per-call connection cache so that a connection
// referenced several times is fetched once.
type resolution struct {
	ctx     context.Context
	r       *Resolver
	scope   state.Projection
	fetched map[string]any
}

func (res *resolution) walk(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return res.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := res.walk(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := res.walk(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return deepCopyAny(v), nil
	}
}

// resolveString resolves one string. A string that is exactly one token
// keeps the native type of the resolved value; otherwise every token is
// replaced by its string form.
func (res *resolution) resolveString(s string) (any, error) {
	if expr, ok := wholeToken(s); ok {
		return res.lookup(expr)
	}
	if !strings.Contains(s, tokenOpen) {
		return s, nil
	}

	var sb strings.Builder
	sb.Grow(len(s))
	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], tokenOpen)
		if idx == -1 {
			sb.WriteString(s[i:])
			break
		}
		start := i + idx
		end := strings.IndexByte(s[start+len(tokenOpen):], tokenClose)
		if end == -1 {
			// Unterminated: the rest is literal text.
			sb.WriteString(s[i:])
			break
		}
		end += start + len(tokenOpen)

		sb.WriteString(s[i:start])
		val, err := res.lookup(s[start+len(tokenOpen) : end])
		if err != nil {
			return nil, err
		}
		sb.WriteString(stringify(val))
		i = end + 1
	}
	return sb.String(), nil
}

// lookup resolves a single token body such as "trigger.items[0]".
func (res *resolution) lookup(expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", nil
	}
	segs, ok := parsePath(expr)
	if !ok || segs[0].isIndex {
		return "", nil
	}

	var (
		val   any
		found bool
	)
	switch segs[0].key {
	case namespaceConfigs:
		val, found = walk(res.scope.Configs, segs[1:])
	case namespaceConnections:
		if len(segs) < 2 {
			return "", nil
		}
		conn, err := res.connection(segs[1].String())
		if err != nil {
			return nil, err
		}
		val, found = walk(conn, segs[2:])
	default:
		val, found = walk(res.scope.Steps, segs)
	}

	if !found {
		res.r.logger.DebugContext(res.ctx, "template path not found", slog.String("path", expr))
		return "", nil
	}
	return deepCopyAny(val), nil
}

// connection fetches and caches the value of the named connection.
func (res *resolution) connection(name string) (any, error) {
	if v, ok := res.fetched[name]; ok {
		return v, nil
	}
	if res.r.connections == nil {
		return nil, schema.NewErrorf(schema.ErrCodeConnection,
			"cannot resolve connection %q: no connections service configured", name)
	}

	conn, err := res.r.connections.Obtain(res.ctx, name)
	if err != nil {
		return nil, err
	}

	if conn == nil {
		return nil, connections.NotFound(name)
	}
	value, err := schema.Normalize(conn.Value)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConnection,
			"connection %q value is not JSON-serializable: %s", name, err.Error()).WithCause(err)
	}
	if value == nil {
		// Present but empty still counts as found for path walking.
		value = map[string]any{}
	}
	res.fetched[name] = value
	return value, nil
}

// wholeToken reports whether s consists of exactly one ${...} token and
// returns its body.
func wholeToken(s string) (string, bool) {
	if !strings.HasPrefix(s, tokenOpen) || len(s) < len(tokenOpen)+1 {
		return "", false
	}
	body := s[len(tokenOpen):]
	end := strings.IndexByte(body, tokenClose)
	if end == -1 || end != len(body)-1 {
		return "", false
	}
	return body[:end], true
}

// stringify renders a resolved value for embedding into surrounding text.
// Strings are used verbatim, everything else is JSON-encoded, so a number
// reads the same at the top level and nested in an array.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprintf("%v", val)
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
}
