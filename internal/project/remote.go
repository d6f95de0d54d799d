package project

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

// wireAssetDoc installs the op callback for an asset Doc: every incoming
// assetOp is applied to the in-memory Asset and, if it changes name/path/
// file in a way that moves or places the asset, reflected into `files`
// and published as an Event for DiskMirror.
func (p *Project) wireAssetDoc(id model.UniqueID, doc ports.DocHandle) {
	doc.OnOp(func(_ []model.TextOp, assetOps []model.AssetOp, source string) {
		_ = p.run(func() error {
			p.reactToAssetOps(id, assetOps, source)
			return nil
		})
	})
}

// wireContentDoc installs the op callback for a content Doc: incoming
// text ops not originated by this process are translated into an
// EventFileUpdate carrying both the raw ops (for an open editor buffer)
// and the resulting full text (for the closed-document disk fallback).
func (p *Project) wireContentDoc(id model.UniqueID, doc ports.DocHandle) {
	doc.OnOp(func(ops []model.TextOp, _ []model.AssetOp, source string) {
		_ = p.run(func() error {
			p.reactToContentOps(id, ops, source, doc)
			return nil
		})
	})
}

// markClean records that a pending local save was acknowledged by the
// server, clearing the file's Dirty flag, and publishes EventFileSave.
func (p *Project) markClean(id model.UniqueID) {
	path, ok := p.uniqueToPath[id]
	if !ok {
		return
	}
	vf, ok := p.files[path]
	if !ok {
		return
	}
	vf.Dirty = false
	p.files[path] = vf
	p.publish(Event{Kind: EventFileSave, Path: path})
}

// reactToAssetOps must run on the scheduler goroutine.
func (p *Project) reactToAssetOps(id model.UniqueID, assetOps []model.AssetOp, source string) {
	asset, ok := p.assets[id]
	if !ok {
		slog.Warn("project: asset op for unknown asset", "assetId", id)
		return
	}

	isLocalEcho := source == p.localSource && p.echoes.Consume(id.String())
	wasPlaced := false
	if _, placed := p.uniqueToPath[id]; placed {
		wasPlaced = true
	}
	oldPath := p.uniqueToPath[id]

	changedFields := make(map[string]bool, len(assetOps))
	for _, op := range assetOps {
		field, before, after, ok := applyAssetOp(asset, op)
		if !ok {
			continue
		}
		changedFields[field] = true
		_ = before
		_ = after
	}
	if len(changedFields) == 0 {
		return
	}
	if isLocalEcho {
		// Already reflected locally when the op was submitted; asset
		// struct is kept current above but no Event is re-published.
		return
	}

	if changedFields["file"] && !wasPlaced {
		p.tryPlaceNewlyNamedFile(context.Background(), id)
		return
	}

	if !changedFields["name"] && !changedFields["path"] {
		if changedFields["file"] && wasPlaced {
			// Hash-only change to an already-placed file's metadata; the
			// content Doc op stream is authoritative for body changes.
			slog.Debug("project: file metadata changed on placed asset", "assetId", id)
		}
		return
	}
	if !wasPlaced {
		return
	}

	newPath, err := p.assetPath(id, nil, "")
	if err != nil {
		return
	}
	if newPath == oldPath {
		return
	}
	if p.checkCollision(id, newPath) {
		p.removeFile(oldPath)
		p.signal.Notify("a rename collided with an existing path", "Show", "Reload")
		p.publish(Event{Kind: EventFileDelete, Path: oldPath})
		return
	}

	p.renameFilesPrefix(oldPath, newPath)
	p.publish(Event{Kind: EventFileRename, FromPath: oldPath, ToPath: newPath, IsFolder: asset.IsFolder()})
}

// reactToContentOps must run on the scheduler goroutine.
func (p *Project) reactToContentOps(id model.UniqueID, ops []model.TextOp, source string, doc ports.DocHandle) {
	path, ok := p.uniqueToPath[id]
	if !ok {
		return
	}
	if len(ops) == 0 {
		return
	}
	if source == p.localSource && p.echoes.Consume(id.String()) {
		return
	}

	var snapshot string
	if err := json.Unmarshal(doc.Data(), &snapshot); err != nil {
		snapshot = string(doc.Data())
	}
	p.publish(Event{Kind: EventFileUpdate, Path: path, TextOps: ops, NewContent: snapshot})
}
