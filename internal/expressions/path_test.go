package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want []segment
	}{
		{"a", []segment{{key: "a"}}},
		{"a.b.c", []segment{{key: "a"}, {key: "b"}, {key: "c"}}},
		{"items[0]", []segment{{key: "items"}, {index: 0, isIndex: true}}},
		{"a[1][2].b", []segment{{key: "a"}, {index: 1, isIndex: true}, {index: 2, isIndex: true}, {key: "b"}}},
		{"a['first name']", []segment{{key: "a"}, {key: "first name"}}},
		{`a["x.y"]`, []segment{{key: "a"}, {key: "x.y"}}},
		{"a[key]", []segment{{key: "a"}, {key: "key"}}},
		{" a ", []segment{{key: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			segs, ok := parsePath(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.want, segs)
		})
	}
}

func TestParsePath_Malformed(t *testing.T) {
	for _, path := range []string{"", ".a", "a.", "a..b", "a[", "a[]", "a['x'", "a['x'x]", "a[0]b"} {
		t.Run(path, func(t *testing.T) {
			_, ok := parsePath(path)
			assert.False(t, ok)
		})
	}
}

func TestWalk(t *testing.T) {
	root := map[string]any{
		"items": []any{"x", map[string]any{"id": 2.0}},
		"obj":   map[string]any{"0": "zero"},
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"items[0]", "x", true},
		{"items[1].id", 2.0, true},
		{"items.1.id", 2.0, true},
		{"items.length", 2.0, true},
		{"obj[0]", "zero", true},
		{"items[2]", nil, false},
		{"items[-1]", nil, false},
		{"items.first", nil, false},
		{"obj.missing", nil, false},
		{"items[0].deep", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			segs, ok := parsePath(tt.path)
			require.True(t, ok)
			got, found := walk(root, segs)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}
