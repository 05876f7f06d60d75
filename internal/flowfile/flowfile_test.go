package flowfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

const flowYAML = `
displayName: orders
trigger:
  name: trigger
  nextAction:
    name: each
    type: LOOP_ON_ITEMS
    settings:
      items: ${trigger.items}
    firstLoopAction:
      name: charge
      type: PIECE
      settings:
        pieceName: http
        actionName: post
        input:
          amount: 10
          headers:
            1: one
    nextAction:
      name: check
      type: BRANCH
      settings:
        condition: steps.trigger.total > 5
      onSuccessAction:
        name: save
        type: STORAGE
        settings:
          key: last
          value: ${trigger.total}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFlow_YAML(t *testing.T) {
	flow, err := LoadFlow(writeFile(t, "flow.yaml", flowYAML))
	require.NoError(t, err)

	assert.Equal(t, "orders", flow.DisplayName)
	assert.Equal(t, "trigger", flow.Trigger.Name)

	loop := flow.Trigger.NextAction
	require.NotNil(t, loop)
	assert.Equal(t, schema.ActionTypeLoop, loop.Type)
	assert.Equal(t, "${trigger.items}", loop.Settings["items"])

	charge := loop.FirstLoopAction
	require.NotNil(t, charge)
	input := charge.Settings["input"].(map[string]any)
	assert.Equal(t, 10.0, input["amount"], "numbers take their JSON form")
	assert.Equal(t, map[string]any{"1": "one"}, input["headers"])

	check := loop.NextAction
	require.NotNil(t, check)
	assert.Equal(t, schema.ActionTypeBranch, check.Type)
	require.NotNil(t, check.OnSuccessAction)
	assert.Equal(t, "save", check.OnSuccessAction.Name)
	assert.Nil(t, check.OnFailureAction)
}

func TestLoadFlow_JSON(t *testing.T) {
	path := writeFile(t, "flow.json", `{
		"trigger": {"name": "t", "nextAction": {"name": "a", "type": "CODE", "settings": {"script": "1 + 1"}}}
	}`)
	flow, err := LoadFlow(path)
	require.NoError(t, err)
	assert.Equal(t, "t", flow.Trigger.Name)
	assert.Equal(t, "1 + 1", flow.Trigger.NextAction.Settings["script"])
}

func TestLoadFlow_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown field", "flow.yaml", "trigger:\n  name: t\n  nxtAction: {}\n"},
		{"bad yaml", "flow.yaml", "trigger: [\n"},
		{"bad json", "flow.json", "{"},
		{"not an object", "flow.yaml", "- a\n- b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFlow(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
		})
	}
}

func TestLoadFlow_MissingFile(t *testing.T) {
	_, err := LoadFlow(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDocument(t *testing.T) {
	doc, err := LoadDocument(writeFile(t, "configs.yaml", "limit: 3\nregion: eu\nitems: [1, two]\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"limit": 3.0, "region": "eu", "items": []any{1.0, "two"}}, doc)

	doc, err = LoadDocument(writeFile(t, "trigger.json", `{"id": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "x"}, doc)
}

func TestLoadDocument_EmptyPathAndContent(t *testing.T) {
	doc, err := LoadDocument("")
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = LoadDocument(writeFile(t, "empty.yaml", "\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, doc)
}

func TestDecodeDocument_NotAnObject(t *testing.T) {
	_, err := DecodeDocument([]byte("[1, 2]"), JSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an object")
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, JSON, FormatOf("a/b.json"))
	assert.Equal(t, JSON, FormatOf("B.JSON"))
	assert.Equal(t, YAML, FormatOf("flow.yaml"))
	assert.Equal(t, YAML, FormatOf("flow.yml"))
	assert.Equal(t, YAML, FormatOf("-"))
}
