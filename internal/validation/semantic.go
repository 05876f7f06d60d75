package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/stepflow/pkg/schema"
)

// validateSemantic performs semantic analysis on the actions collected by
// validateGraph. Checks: pieces and actions registered, template references
// to known steps, expression settings free of templates, empty loops and
// branches.
func validateSemantic(flow *schema.Flow, actions []located, lookup PieceLookup) *schema.ValidationResult {
	result := schema.NewValidationResult(schema.StageSemantic)

	known := map[string]bool{flow.Trigger.Name: true}
	for _, l := range actions {
		known[l.action.Name] = true
	}

	for _, l := range actions {
		a := l.action
		switch a.Type {
		case schema.ActionTypePiece:
			validatePieceRef(a, l.path, lookup, result)
		case schema.ActionTypeLoop:
			if _, ok := a.Settings["items"]; !ok {
				result.AddWarning(l.path+".settings.items", schema.ErrCodeValidation,
					"loop has no items and never iterates")
			}
			if a.FirstLoopAction == nil {
				result.AddWarning(l.path+".firstLoopAction", schema.ErrCodeValidation,
					"loop has no body")
			}
		case schema.ActionTypeBranch:
			if a.OnSuccessAction == nil && a.OnFailureAction == nil {
				result.AddWarning(l.path, schema.ErrCodeValidation,
					"branch has neither onSuccessAction nor onFailureAction")
			}
			warnRawTemplate(a.Settings, "condition", l.path, result)
		case schema.ActionTypeCode:
			warnRawTemplate(a.Settings, "script", l.path, result)
		}

		for _, ref := range templateRoots(a.Settings) {
			if schema.IsReservedName(ref) || known[ref] {
				continue
			}
			result.AddWarning(l.path+".settings", schema.ErrCodeValidation,
				fmt.Sprintf("template references unknown step %q and resolves to an empty string", ref))
		}
	}

	return result
}

// validatePieceRef checks that a literal piece and action are registered.
// Templated names are only known at run time and are skipped.
func validatePieceRef(a *schema.Action, path string, lookup PieceLookup, result *schema.ValidationResult) {
	if lookup == nil {
		return
	}
	piece, _ := a.Settings["pieceName"].(string)
	action, _ := a.Settings["actionName"].(string)
	if piece == "" || action == "" || strings.Contains(piece, "${") || strings.Contains(action, "${") {
		return
	}

	if !lookup.Has(piece, "") {
		result.AddError(path+".settings.pieceName", schema.ErrCodeNotFound,
			fmt.Sprintf("piece %q not registered", piece))
		return
	}
	if !lookup.Has(piece, action) {
		result.AddError(path+".settings.actionName", schema.ErrCodeNotFound,
			fmt.Sprintf("action %q not found in piece %q", action, piece))
	}
}

// warnRawTemplate flags ${...} inside an expression setting. Expressions are
// evaluated as written, so the marker reaches the expression engine verbatim.
func warnRawTemplate(settings map[string]any, key, path string, result *schema.ValidationResult) {
	if s, ok := settings[key].(string); ok && strings.Contains(s, "${") {
		result.AddWarning(path+".settings."+key, schema.ErrCodeValidation,
			fmt.Sprintf("%s is an expression; ${...} is not resolved here", key))
	}
}

// templateRoots returns the sorted, distinct first path segments of every
// ${...} token found in v.
func templateRoots(v any) []string {
	roots := make(map[string]bool)
	collectRoots(v, roots)
	out := make([]string, 0, len(roots))
	for r := range roots {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func collectRoots(v any, roots map[string]bool) {
	switch val := v.(type) {
	case string:
		for s := val; ; {
			start := strings.Index(s, "${")
			if start == -1 {
				return
			}
			s = s[start+2:]
			end := strings.IndexByte(s, '}')
			if end == -1 {
				return
			}
			if root := tokenRoot(s[:end]); root != "" {
				roots[root] = true
			}
			s = s[end+1:]
		}
	case map[string]any:
		for _, item := range val {
			collectRoots(item, roots)
		}
	case []any:
		for _, item := range val {
			collectRoots(item, roots)
		}
	}
}

// tokenRoot returns the leading identifier of a token body such as
// "fetch.body[0]".
func tokenRoot(body string) string {
	body = strings.TrimSpace(body)
	if i := strings.IndexAny(body, ".["); i >= 0 {
		body = body[:i]
	}
	return body
}
