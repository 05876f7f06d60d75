package pieces

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

// newTestMCPPiece serves a small tool set in-process and wraps it as a piece.
func newTestMCPPiece(t *testing.T) *MCPPiece {
	t.Helper()

	srv := server.NewMCPServer("test-tools", "1.0.0", server.WithToolCapabilities(true))
	srv.AddTool(
		mcp.NewTool("greet",
			mcp.WithDescription("Greet someone"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Who to greet")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, _ := req.GetArguments()["name"].(string)
			return mcp.NewToolResultText("hello " + name), nil
		},
	)
	srv.AddTool(
		mcp.NewTool("sum", mcp.WithDescription("Sum numbers")),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			nums, _ := req.GetArguments()["numbers"].([]any)
			total := 0.0
			for _, n := range nums {
				f, _ := n.(float64)
				total += f
			}
			out, _ := json.Marshal(map[string]any{"total": total, "count": len(nums)})
			return mcp.NewToolResultText(string(out)), nil
		},
	)
	srv.AddTool(
		mcp.NewTool("fail", mcp.WithDescription("Always fails")),
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("quota exceeded"), nil
		},
	)

	c, err := client.NewInProcessClient(srv)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	p, err := NewMCPPiece(context.Background(), "tools", c, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestMCPPiece_Actions(t *testing.T) {
	p := newTestMCPPiece(t)

	assert.Equal(t, "tools", p.Name())
	assert.Equal(t, []ActionInfo{
		{Name: "fail", Description: "Always fails"},
		{Name: "greet", Description: "Greet someone"},
		{Name: "sum", Description: "Sum numbers"},
	}, p.Actions())

	a, ok := p.Action("greet")
	require.True(t, ok)
	assert.Contains(t, string(a.Schema().InputSchema), `"name"`)

	_, ok = p.Action("nope")
	assert.False(t, ok)
}

func TestMCPPiece_ExecThroughRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestMCPPiece(t)))

	out, err := reg.Exec(context.Background(), "tools", "greet", map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", out)

	out, err = reg.Exec(context.Background(), "tools", "sum", map[string]any{"numbers": []any{1.0, 2.5}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 3.5, "count": 2.0}, out)
}

func TestMCPPiece_ToolError(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestMCPPiece(t)))

	_, err := reg.Exec(context.Background(), "tools", "fail", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodePiece, schema.CodeOf(err))
	assert.Equal(t, `piece "tools" action "fail": quota exceeded`, schema.MessageOf(err))
}

func TestStartMCPPiece_InvalidConfig(t *testing.T) {
	_, err := StartMCPPiece(context.Background(), MCPConfig{Name: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`{"a":1}`, map[string]any{"a": 1.0}},
		{`[1,"x"]`, []any{1.0, "x"}},
		{`42`, 42.0},
		{`plain words`, "plain words"},
		{``, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, decodeText(tt.in))
		})
	}
}
