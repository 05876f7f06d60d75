package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

// mockPieceLookup implements PieceLookup for tests. Keys are "piece" and
// "piece.action".
type mockPieceLookup struct {
	registered map[string]bool
}

func (m *mockPieceLookup) Has(piece, action string) bool {
	if action == "" {
		return m.registered[piece]
	}
	return m.registered[piece+"."+action]
}

func newMockLookup(refs ...string) *mockPieceLookup {
	m := &mockPieceLookup{registered: make(map[string]bool)}
	for _, r := range refs {
		m.registered[r] = true
		if piece, _, ok := strings.Cut(r, "."); ok {
			m.registered[piece] = true
		}
	}
	return m
}

func semantic(t *testing.T, flow *schema.Flow, lookup PieceLookup) *schema.ValidationResult {
	t.Helper()
	actions, graph := validateGraph(flow)
	require.True(t, graph.Valid(), "graph errors: %v", graph.Errors)
	return validateSemantic(flow, actions, lookup)
}

// --- Piece existence ---

func TestSemantic_PieceRegistered(t *testing.T) {
	result := semantic(t, flowOf(pieceStep("a", "http", "get")), newMockLookup("http.get"))
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestSemantic_PieceNotRegistered(t *testing.T) {
	result := semantic(t, flowOf(pieceStep("a", "slack", "send")), newMockLookup("http.get"))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "actions.a.settings.pieceName", result.Errors[0].Path)
	assert.Equal(t, schema.ErrCodeNotFound, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, `piece "slack"`)
}

func TestSemantic_ActionNotInPiece(t *testing.T) {
	result := semantic(t, flowOf(pieceStep("a", "http", "delete")), newMockLookup("http.get"))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "actions.a.settings.actionName", result.Errors[0].Path)
	assert.Contains(t, result.Errors[0].Message, `action "delete" not found in piece "http"`)
}

func TestSemantic_TemplatedPieceSkipped(t *testing.T) {
	result := semantic(t, flowOf(pieceStep("a", "${configs.piece}", "get")), newMockLookup())
	assert.True(t, result.Valid())
}

func TestSemantic_NilLookup(t *testing.T) {
	result := semantic(t, flowOf(pieceStep("a", "nonexistent", "x")), nil)
	assert.True(t, result.Valid(), "nil lookup skips piece checks")
}

func TestSemantic_NestedPieceChecked(t *testing.T) {
	flow := flowOf(&schema.Action{
		Name:            "loop",
		Type:            schema.ActionTypeLoop,
		Settings:        map[string]any{"items": "${trigger.items}"},
		FirstLoopAction: pieceStep("inner", "slack", "send"),
	})
	result := semantic(t, flow, newMockLookup("http.get"))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "actions.inner.settings.pieceName", result.Errors[0].Path)
}

// --- Template references ---

func TestSemantic_TemplateReferences(t *testing.T) {
	first := pieceStep("fetch", "http", "get")
	first.Settings["input"] = map[string]any{
		"a": "${trigger.id}",
		"b": "x-${configs.region}-${connections.crm.token}",
		"c": []any{"${fetch.body}"},
	}
	first.NextAction = pieceStep("post", "http", "post")
	first.NextAction.Settings["input"] = map[string]any{"body": "${fecth.body[0]}"}

	result := semantic(t, flowOf(first), nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "actions.post.settings", result.Warnings[0].Path)
	assert.Contains(t, result.Warnings[0].Message, `unknown step "fecth"`)
}

func TestTemplateRoots(t *testing.T) {
	roots := templateRoots(map[string]any{
		"a": "${ b.c } and ${a[0]} and ${}",
		"n": []any{"${z}", 5, "unterminated ${q"},
	})
	assert.Equal(t, []string{"a", "b", "z"}, roots)
}

// --- Kind-specific warnings ---

func TestSemantic_LoopWarnings(t *testing.T) {
	result := semantic(t, flowOf(&schema.Action{Name: "loop", Type: schema.ActionTypeLoop}), nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, "actions.loop.settings.items", result.Warnings[0].Path)
	assert.Equal(t, "actions.loop.firstLoopAction", result.Warnings[1].Path)
}

func TestSemantic_BranchWithoutChains(t *testing.T) {
	flow := flowOf(&schema.Action{
		Name:     "check",
		Type:     schema.ActionTypeBranch,
		Settings: map[string]any{"condition": "true"},
	})
	result := semantic(t, flow, nil)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "neither")
}

func TestSemantic_TemplateInExpression(t *testing.T) {
	flow := flowOf(&schema.Action{
		Name:            "check",
		Type:            schema.ActionTypeBranch,
		Settings:        map[string]any{"condition": "${trigger.ok} == true"},
		OnSuccessAction: &schema.Action{Name: "calc", Type: schema.ActionTypeCode, Settings: map[string]any{"script": "${trigger.n} + 1"}},
	})
	result := semantic(t, flow, nil)
	assert.True(t, result.Valid())

	var paths []string
	for _, w := range result.Warnings {
		paths = append(paths, w.Path)
	}
	assert.Contains(t, paths, "actions.check.settings.condition")
	assert.Contains(t, paths, "actions.calc.settings.script")
}
