package engine

import (
	"context"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/rendis/stepflow/internal/storage"
	"github.com/rendis/stepflow/pkg/schema"
)

// --- Piece action ---

// executePiece resolves the piece settings and calls the Piece Execution
// boundary. Every failure, including unknown pieces and actions, becomes a
// FAILED output.
func (r *flowRun) executePiece(ctx context.Context, n *node) (*schema.StepOutput, error) {
	out := &schema.StepOutput{}

	settings, err := r.resolver.ResolveMap(ctx, n.settings, r.state.Project())
	if err != nil {
		return out.Fail(err), nil
	}
	// A template input that resolved to nothing counts as no input.
	if in, ok := settings["input"].(string); ok && in == "" {
		delete(settings, "input")
	}
	var cfg schema.PieceSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		out.Input = settings["input"]
		return out.Fail(err), nil
	}
	if cfg.Input == nil {
		cfg.Input = map[string]any{}
	}
	out.Input = cfg.Input

	if cfg.PieceName == "" || cfg.ActionName == "" {
		return out.Fail(schema.NewError(schema.ErrCodeValidation, "pieceName and actionName are required")), nil
	}
	if r.pieces == nil {
		return out.Fail(schema.NewErrorf(schema.ErrCodePiece, "piece %q: no piece executor configured", cfg.PieceName)), nil
	}

	result, err := r.pieces.Exec(ctx, cfg.PieceName, cfg.ActionName, cfg.Input)
	if err != nil {
		return out.Fail(err), nil
	}
	normalized, err := schema.Normalize(result)
	if err != nil {
		return out.Fail(schema.NewErrorf(schema.ErrCodePiece,
			"piece %q action %q returned a non-JSON value: %s", cfg.PieceName, cfg.ActionName, err.Error()).WithCause(err)), nil
	}
	return out.Succeed(normalized), nil
}

// --- Storage action ---

// executeStorage reads or writes one entry of the flow store. A GET of a
// missing key succeeds with a null value.
func (r *flowRun) executeStorage(ctx context.Context, n *node) (*schema.StepOutput, error) {
	out := &schema.StepOutput{}

	settings, err := r.resolver.ResolveMap(ctx, n.settings, r.state.Project())
	if err != nil {
		return out.Fail(err), nil
	}
	out.Input = settings

	var cfg schema.StorageSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return out.Fail(err), nil
	}
	if cfg.Key == "" {
		return out.Fail(schema.NewError(schema.ErrCodeValidation, "storage key is required")), nil
	}
	if r.storage == nil {
		return out.Fail(schema.NewErrorf(schema.ErrCodeStorage, "storage %q: no storage service configured", cfg.Key)), nil
	}

	switch schema.StorageOperation(strings.ToUpper(string(cfg.Operation))) {
	case schema.StorageGet, "":
		rec, err := r.storage.Get(ctx, cfg.Key)
		if err != nil {
			return out.Fail(err), nil
		}
		return out.Succeed(recordOutput(cfg.Key, rec)), nil
	case schema.StoragePut:
		rec, err := r.storage.Put(ctx, storage.Record{Key: cfg.Key, Value: cfg.Value})
		if err != nil {
			return out.Fail(err), nil
		}
		return out.Succeed(recordOutput(cfg.Key, rec)), nil
	default:
		return out.Fail(schema.NewErrorf(schema.ErrCodeValidation, "unknown storage operation %q", cfg.Operation)), nil
	}
}

// --- Code action ---

// executeCode evaluates a script against the resolved input. The script
// itself is never template-resolved.
func (r *flowRun) executeCode(ctx context.Context, n *node) (*schema.StepOutput, error) {
	out := &schema.StepOutput{}

	var cfg schema.CodeSettings
	if err := decodeSettings(n.settings, &cfg); err != nil {
		return out.Fail(err), nil
	}
	input, err := r.resolver.ResolveMap(ctx, cfg.Input, r.state.Project())
	if err != nil {
		return out.Fail(err), nil
	}
	out.Input = input

	lang := strings.ToLower(cfg.Language)
	if lang == "" {
		lang = "expr"
	}
	engine, ok := r.scripts[lang]
	if !ok {
		return out.Fail(schema.NewErrorf(schema.ErrCodeValidation, "unsupported code language %q", cfg.Language)), nil
	}

	result, err := engine.Evaluate(ctx, cfg.Script, input)
	if err != nil {
		return out.Fail(err), nil
	}
	normalized, err := schema.Normalize(result)
	if err != nil {
		return out.Fail(schema.NewErrorf(schema.ErrCodeExpression, "script result is not JSON-serializable: %s", err.Error()).WithCause(err)), nil
	}
	return out.Succeed(normalized), nil
}

// decodeSettings decodes loosely typed settings into a settings struct.
// Scalars are converted where unambiguous, e.g. a numeric key to a string.
func decodeSettings(settings map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeInternal, "settings decoder: %s", err.Error()).WithCause(err)
	}
	if err := dec.Decode(settings); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid settings: %s", err.Error()).WithCause(err)
	}
	return nil
}

func recordOutput(key string, rec *storage.Record) map[string]any {
	var value any
	if rec != nil {
		value = rec.Value
	}
	return map[string]any{"key": key, "value": value}
}
