package project

import (
	"log/slog"

	"github.com/scenehub/projectsync/internal/model"
)

// applyAssetOp mutates asset in place per a single remote AssetOp,
// keyed directly by top-level field name rather than walking a raw JSON
// tree — Asset is a tagged-variant struct, so an op path's first
// segment selects the struct field and any deeper segment selects
// within it. Returns the mutated field's key plus its before/after
// values for the resulting asset:update event, or ok=false if the op
// could not be applied (logged and skipped, never a crash).
func applyAssetOp(asset *model.Asset, op model.AssetOp) (leafKey string, before, after any, ok bool) {
	if len(op.Path) == 0 {
		slog.Warn("project: asset op with empty path", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}

	field, isString := op.Path[0].(string)
	if !isString {
		slog.Warn("project: asset op with non-string top-level path segment", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}

	switch field {
	case "name":
		return applyNameOp(asset, op)
	case "path":
		return applyPathOp(asset, op)
	case "file":
		return applyFileOp(asset, op)
	case "type":
		before = asset.Type
		if op.OI != nil {
			if s, ok := op.OI.(string); ok {
				asset.Type = model.AssetType(s)
			}
		}
		return "type", before, asset.Type, true
	default:
		slog.Warn("project: asset op against unsupported field", "assetId", asset.UniqueID, "field", field)
		return "", nil, nil, false
	}
}

func applyNameOp(asset *model.Asset, op model.AssetOp) (string, any, any, bool) {
	if len(op.Path) != 1 {
		slog.Warn("project: unsupported nested op under name", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}
	before := asset.Name
	if s, ok := op.OI.(string); ok {
		asset.Name = s
	} else {
		slog.Warn("project: name op-insert value not a string; skipping", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}
	return "name", before, asset.Name, true
}

func applyPathOp(asset *model.Asset, op model.AssetOp) (string, any, any, bool) {
	before := append([]model.ItemID(nil), asset.Path...)

	if len(op.Path) == 1 {
		// Whole-array object-insert/delete (a full "move" replacing the
		// ancestor chain in one op).
		ids, ok := toItemIDSlice(op.OI)
		if !ok {
			slog.Warn("project: path op-insert value not a list; skipping", "assetId", asset.UniqueID)
			return "", nil, nil, false
		}
		asset.Path = ids
		return "path", before, asset.Path, true
	}

	idx, ok := toInt(op.Path[1])
	if !ok || idx < 0 {
		slog.Warn("project: path op with non-integer index; skipping", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}

	switch {
	case op.HasListSet():
		if idx >= len(asset.Path) {
			slog.Warn("project: path list-set index out of range; skipping", "assetId", asset.UniqueID)
			return "", nil, nil, false
		}
		v, ok := toItemID(op.LI)
		if !ok {
			return "", nil, nil, false
		}
		asset.Path[idx] = v
	case op.LI != nil:
		v, ok := toItemID(op.LI)
		if !ok {
			return "", nil, nil, false
		}
		if idx > len(asset.Path) {
			idx = len(asset.Path)
		}
		asset.Path = append(asset.Path, 0)
		copy(asset.Path[idx+1:], asset.Path[idx:])
		asset.Path[idx] = v
	case op.LD != nil:
		if idx >= len(asset.Path) {
			slog.Warn("project: path list-delete index out of range; skipping", "assetId", asset.UniqueID)
			return "", nil, nil, false
		}
		asset.Path = append(asset.Path[:idx], asset.Path[idx+1:]...)
	default:
		slog.Warn("project: path op with no li/ld/listset; skipping", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}

	return "path", before, asset.Path, true
}

func applyFileOp(asset *model.Asset, op model.AssetOp) (string, any, any, bool) {
	if len(op.Path) == 1 {
		before := asset.File
		m, ok := op.OI.(map[string]any)
		if !ok {
			slog.Warn("project: file op-insert value not an object; skipping", "assetId", asset.UniqueID)
			return "", nil, nil, false
		}
		f := &model.AssetFile{}
		if v, ok := m["filename"].(string); ok {
			f.Filename = v
		}
		if v, ok := m["hash"].(string); ok {
			f.Hash = v
		}
		asset.File = f
		return "file", before, asset.File, true
	}

	// Nested op, e.g. path == ["file", "filename"] or ["file", "hash"].
	if asset.File == nil {
		// Traversing into a primitive (nil) — refuse, log, skip.
		slog.Warn("project: nested file op against folder asset; skipping", "assetId", asset.UniqueID)
		return "", nil, nil, false
	}
	subKey, ok := op.Path[1].(string)
	if !ok {
		return "", nil, nil, false
	}
	before := *asset.File
	switch subKey {
	case "filename":
		if s, ok := op.OI.(string); ok {
			asset.File.Filename = s
		}
	case "hash":
		if s, ok := op.OI.(string); ok {
			asset.File.Hash = s
		}
	default:
		slog.Warn("project: unsupported file sub-field op", "assetId", asset.UniqueID, "field", subKey)
		return "", nil, nil, false
	}
	return "file", before, *asset.File, true
}

func toItemID(v any) (model.ItemID, bool) {
	i, ok := toInt(v)
	if !ok {
		return 0, false
	}
	return model.ItemID(i), true
}

func toItemIDSlice(v any) ([]model.ItemID, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]model.ItemID, 0, len(list))
	for _, item := range list {
		id, ok := toItemID(item)
		if !ok {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
