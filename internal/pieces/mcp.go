package pieces

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/stepflow/pkg/schema"
)

// MCPConfig describes how to launch an MCP server that backs a piece.
type MCPConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// MCPPiece is a Piece whose actions are the tools of an MCP server.
type MCPPiece struct {
	name   string
	client *client.Client
	tools  map[string]mcp.Tool
	logger *slog.Logger
}

// StartMCPPiece launches the configured server over stdio and wraps it as
// a piece.
func StartMCPPiece(ctx context.Context, cfg MCPConfig, logger *slog.Logger) (*MCPPiece, error) {
	if cfg.Name == "" || cfg.Command == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "mcp piece requires name and command")
	}
	c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePiece, "start mcp piece %q: %v", cfg.Name, err).WithCause(err)
	}
	p, err := NewMCPPiece(ctx, cfg.Name, c, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return p, nil
}

// NewMCPPiece performs the MCP handshake on an already started client and
// loads the server's tool list.
func NewMCPPiece(ctx context.Context, name string, c *client.Client, logger *slog.Logger) (*MCPPiece, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "stepflow", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePiece, "handshake with mcp piece %q: %v", name, err).WithCause(err)
	}

	list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePiece, "list tools of mcp piece %q: %v", name, err).WithCause(err)
	}

	tools := make(map[string]mcp.Tool, len(list.Tools))
	for _, t := range list.Tools {
		tools[t.Name] = t
	}
	logger.Info("mcp piece loaded", slog.String("piece", name), slog.Int("tools", len(tools)))

	return &MCPPiece{name: name, client: c, tools: tools, logger: logger}, nil
}

func (p *MCPPiece) Name() string { return p.name }

func (p *MCPPiece) Action(name string) (Action, bool) {
	t, ok := p.tools[name]
	if !ok {
		return nil, false
	}
	return &mcpToolAction{piece: p, tool: t}, true
}

// Actions lists the server's tools sorted by name.
func (p *MCPPiece) Actions() []ActionInfo {
	infos := make([]ActionInfo, 0, len(p.tools))
	for _, t := range p.tools {
		infos = append(infos, ActionInfo{Name: t.Name, Description: t.Description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Close shuts the MCP session down.
func (p *MCPPiece) Close() error {
	return p.client.Close()
}

// mcpToolAction calls one tool of the piece's server.
type mcpToolAction struct {
	piece *MCPPiece
	tool  mcp.Tool
}

func (a *mcpToolAction) Name() string { return a.tool.Name }

func (a *mcpToolAction) Schema() ActionSchema {
	s := ActionSchema{Description: a.tool.Description}
	if len(a.tool.RawInputSchema) > 0 {
		s.InputSchema = a.tool.RawInputSchema
	} else if raw, err := json.Marshal(a.tool.InputSchema); err == nil {
		s.InputSchema = raw
	}
	return s
}

func (a *mcpToolAction) Validate(map[string]any) error { return nil }

func (a *mcpToolAction) Execute(ctx context.Context, props map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = a.tool.Name
	req.Params.Arguments = props

	res, err := a.piece.client.CallTool(ctx, req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePiece, "call tool: %v", err).WithCause(err)
	}

	texts := textContents(res.Content)
	if res.IsError {
		msg := strings.Join(texts, "; ")
		if msg == "" {
			msg = "tool reported an error"
		}
		return nil, schema.NewError(schema.ErrCodePiece, msg)
	}

	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	switch len(texts) {
	case 0:
		return nil, nil
	case 1:
		return decodeText(texts[0]), nil
	default:
		out := make([]any, len(texts))
		for i, t := range texts {
			out[i] = decodeText(t)
		}
		return out, nil
	}
}

func textContents(content []mcp.Content) []string {
	var texts []string
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			texts = append(texts, tc.Text)
		case *mcp.TextContent:
			texts = append(texts, tc.Text)
		}
	}
	return texts
}

// decodeText returns the JSON value of text when it is valid JSON, and the
// text itself otherwise.
func decodeText(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

