package project

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/scenehub/projectsync/internal/errs"
	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/opcodec"
	"github.com/scenehub/projectsync/internal/ports"
)

// pollInterval is how often WaitForFile re-checks placement.
const pollInterval = 25 * time.Millisecond

// Path returns the current workspace path of an asset, or false if it is
// not currently placed (unplaced, tracked-only, or collided).
func (p *Project) Path(id model.UniqueID) (string, bool) {
	var result string
	var ok bool
	_ = p.run(func() error {
		result, ok = p.uniqueToPath[id]
		return nil
	})
	return result, ok
}

// Collision is one path currently excluded from `files` because another
// asset already occupies it (or one of its ancestors does).
type Collision struct {
	Path    string
	AssetID model.ItemID
}

// Collisions returns the paths currently excluded from `files` due to a
// path collision, paired with the item id that lost out.
func (p *Project) Collisions() []Collision {
	var out []Collision
	_ = p.run(func() error {
		ids := p.collisions.ToSlice()
		out = make([]Collision, 0, len(ids))
		for _, id := range ids {
			asset, ok := p.assets[id]
			if !ok {
				continue
			}
			out = append(out, Collision{Path: p.collidedPaths[id], AssetID: asset.ItemID})
		}
		return nil
	})
	return out
}

// Kind returns the asset type of the placed file or folder at path, for
// callers that need to confirm an asset's identity before issuing a
// delete against a path that may since have been replaced.
func (p *Project) Kind(targetPath string) (model.AssetType, bool) {
	var kind model.AssetType
	var ok bool
	_ = p.run(func() error {
		vf, found := p.files[targetPath]
		if !found {
			return nil
		}
		asset, foundAsset := p.assets[vf.UniqueID]
		if !foundAsset {
			return nil
		}
		kind, ok = asset.Type, true
		return nil
	})
	return kind, ok
}

// WaitForFile blocks until path appears in `files` or ctx is done; used
// after Create's REST round trip, before the corresponding asset-doc
// echo has necessarily been applied.
func (p *Project) WaitForFile(ctx context.Context, targetPath string) error {
	for {
		var present bool
		_ = p.run(func() error {
			_, present = p.files[targetPath]
			return nil
		})
		if present {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Create asks the server to create a new asset at parentPath named name.
// For files, ext determines the asset type, and a name whose extension
// is not recognized gets ".txt" appended; empty content is uploaded as
// "\n".
func (p *Project) Create(ctx context.Context, parentPath, name string, isFolder bool, content []byte) (model.UniqueID, error) {
	parentID, ok := p.resolveFolder(parentPath)
	if !ok {
		return 0, errs.ErrMissingParent
	}
	if name == "" || strings.ContainsAny(name, "/\\") {
		return 0, errs.ErrInvalidName
	}

	req := ports.AssetCreateRequest{Name: name, Parent: &parentID}
	if isFolder {
		req.Type = model.AssetTypeFolder
	} else {
		ext := strings.TrimPrefix(path.Ext(name), ".")
		assetType, _, known := model.AssetTypeForExt(ext)
		req.Type = assetType
		if !known {
			req.Name = name + ".txt"
		}
		req.Filename = req.Name
		if len(content) == 0 {
			content = []byte("\n")
		}
		req.File = content
		req.Preload = true
	}

	projectID, branchID := p.identity()
	asset, err := p.rest.AssetCreate(ctx, projectID, branchID, req)
	if err != nil {
		return 0, fmt.Errorf("create asset: %w", err)
	}

	if err := p.adoptCreatedAsset(ctx, asset); err != nil {
		p.signal.Recoverable(err)
	}
	return asset.UniqueID, nil
}

// adoptCreatedAsset subscribes the newly created asset (and its content
// Doc, for files) and places it, mirroring what Link does in bulk for
// the initial asset set.
func (p *Project) adoptCreatedAsset(ctx context.Context, asset model.Asset) error {
	assetDoc, err := p.realtime.Subscribe(ctx, collectionAssets, asset.UniqueID.String())
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSubscribeFailed, err)
	}

	var contentDoc ports.DocHandle
	if !asset.IsFolder() {
		contentDoc, err = p.realtime.Subscribe(ctx, collectionDocuments, asset.UniqueID.String())
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrSubscribeFailed, err)
		}
	}

	return p.run(func() error {
		p.assets[asset.UniqueID] = &asset
		p.idToUnique.Put(asset.ItemID, asset.UniqueID)
		p.assetDocs[asset.UniqueID] = assetDoc
		p.wireAssetDoc(asset.UniqueID, assetDoc)

		if asset.IsFolder() {
			if p.placeAsset(asset.UniqueID) {
				return nil
			}
			newPath, _ := p.assetPath(asset.UniqueID, nil, "")
			p.publish(Event{Kind: EventFileCreate, Path: newPath, IsFolder: true})
			return nil
		}

		placed, collided := p.placeFileAsset(ctx, asset)
		if collided || !placed {
			return nil
		}
		p.contentDocs[asset.UniqueID] = contentDoc
		p.wireContentDoc(asset.UniqueID, contentDoc)

		newPath, _ := p.assetPath(asset.UniqueID, nil, "")
		initial := ""
		if asset.File != nil {
			initial = "\n"
		}
		p.publish(Event{Kind: EventFileCreate, Path: newPath, NewContent: initial})
		return nil
	})
}

// fsDeleteOp is the wire shape of a raw "fs"-prefixed realtime payload
// requesting deletion. Asset deletion is not part of the REST asset-CRUD
// surface; like Save's "doc:save:<id>" payload, it rides the same raw
// out-of-band channel instead of a Doc op.
type fsDeleteOp struct {
	Op  string           `json:"op"`
	IDs []model.UniqueID `json:"ids"`
}

// fsMoveOp is the wire shape of a raw "fs" move, used by Rename when the
// destination folder differs from the source's current parent.
type fsMoveOp struct {
	Op  string           `json:"op"`
	IDs []model.UniqueID `json:"ids"`
	To  model.UniqueID   `json:"to"`
}

// Delete removes the asset at targetPath, provided its current kind
// still matches expectedKind — a caller's last-known type, guarding
// against a stale path that has since been replaced by a different
// asset. A missing or mismatched asset is a silent no-op: by the time a
// delete is issued the local view may already be behind the server's.
// The server is the source of truth for the resulting asset deletion
// (delivered out of band via the messenger as assets.delete, not
// modeled as a Doc op, see Retire), so this sends the request and then
// waits for that notification to retire the asset locally before
// returning.
func (p *Project) Delete(ctx context.Context, targetPath string, expectedKind model.AssetType) error {
	id, kind, ok := p.uniqueForKind(targetPath)
	if !ok || kind != expectedKind {
		return nil
	}

	payload, err := json.Marshal(fsDeleteOp{Op: "delete", IDs: []model.UniqueID{id}})
	if err != nil {
		return fmt.Errorf("encode delete payload: %w", err)
	}
	if err := p.realtime.SendRaw(ctx, "fs"+string(payload)); err != nil {
		return fmt.Errorf("send delete: %w", err)
	}

	for {
		var gone bool
		_ = p.run(func() error {
			_, tracked := p.assets[id]
			gone = !tracked
			return nil
		})
		if gone {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Retire removes an asset's local bookkeeping once the server confirms
// its deletion (invoked by the messenger adapter on assets.delete).
func (p *Project) Retire(id model.UniqueID) {
	_ = p.run(func() error {
		path, placed := p.uniqueToPath[id]
		if placed {
			p.removeFile(path)
			isFolder := true
			if a, ok := p.assets[id]; ok {
				isFolder = a.IsFolder()
			}
			p.publish(Event{Kind: EventFileDelete, Path: path, IsFolder: isFolder})
		}
		if doc, ok := p.assetDocs[id]; ok {
			doc.Off()
			p.realtime.Unsubscribe(collectionAssets, id.String())
			delete(p.assetDocs, id)
		}
		if doc, ok := p.contentDocs[id]; ok {
			doc.Off()
			p.realtime.Unsubscribe(collectionDocuments, id.String())
			delete(p.contentDocs, id)
		}
		delete(p.assets, id)
		p.collisions.Remove(id)
		delete(p.collidedPaths, id)
		return nil
	})
}

// Rename moves/renames the asset at oldPath to newPath, possibly under a
// different parent. A same-parent rename (leaf name only) goes through
// the REST rename endpoint, matching the server's one-field PATCH. A
// cross-folder move has no REST endpoint of its own — it rides the same
// raw "fs" realtime channel Delete uses, as a move op naming the
// destination folder's id (0 for the workspace root). Either way it
// registers two expected self-echoes — one for the name op, one for the
// path op — since the server always reflects a rename as both fields
// changing, even when only the leaf name moved.
func (p *Project) Rename(ctx context.Context, oldPath, newPath string) error {
	if oldPath == "" {
		return errs.ErrCannotMoveRoot
	}
	id, ok := p.uniqueFor(oldPath)
	if !ok {
		return errs.ErrFileNotFound
	}
	newParentPath := parentPath(newPath)
	destParentID, ok := p.resolveFolder(newParentPath)
	if !ok {
		return errs.ErrDestFolderNotFound
	}
	newName := path.Base(newPath)

	var occupied bool
	_ = p.run(func() error {
		_, occupied = p.files[newPath]
		return nil
	})
	if occupied {
		return errs.ErrFileExists
	}

	sameParent := parentPath(oldPath) == newParentPath

	var updated model.Asset
	if sameParent {
		projectID, branchID := p.identity()
		var err error
		updated, err = p.rest.AssetRename(ctx, projectID, branchID, id, newName)
		if err != nil {
			return fmt.Errorf("rename asset: %w", err)
		}
	} else {
		payload, err := json.Marshal(fsMoveOp{Op: "move", IDs: []model.UniqueID{id}, To: destParentID})
		if err != nil {
			return fmt.Errorf("encode move payload: %w", err)
		}
		if err := p.realtime.SendRaw(ctx, "fs"+string(payload)); err != nil {
			return fmt.Errorf("send move: %w", err)
		}
	}

	return p.run(func() error {
		p.echoes.Add(id.String())
		p.echoes.Add(id.String())
		asset, ok := p.assets[id]
		if !ok {
			return errs.ErrFileNotFound
		}
		if sameParent {
			asset.Name = updated.Name
			asset.Path = updated.Path
		} else {
			asset.Name = newName
			asset.Path = p.ancestorPathFor(destParentID)
		}

		computedNew, err := p.assetPath(id, nil, "")
		if err != nil {
			return err
		}
		if p.checkCollision(id, computedNew) {
			p.removeFile(oldPath)
			p.signal.Notify("rename collided with an existing path", "Show", "Reload")
			p.publish(Event{Kind: EventFileDelete, Path: oldPath})
			return nil
		}
		p.renameFilesPrefix(oldPath, computedNew)
		p.publish(Event{Kind: EventFileRename, FromPath: oldPath, ToPath: computedNew, IsFolder: asset.IsFolder()})
		return nil
	})
}

// ancestorPathFor returns the ancestor ItemID chain a direct child of
// parentID would carry in its own asset.Path field: parentID's own
// ancestor chain with parentID's ItemID appended, or nil if parentID is
// the synthetic workspace root (UniqueID 0).
func (p *Project) ancestorPathFor(parentID model.UniqueID) []model.ItemID {
	if parentID == 0 {
		return nil
	}
	parentAsset, ok := p.assets[parentID]
	if !ok {
		return nil
	}
	return append(append([]model.ItemID{}, parentAsset.Path...), parentAsset.ItemID)
}

// Write submits the minimal diff between the content Doc's current
// snapshot and newContent as a text op tagged with this Project's local
// source, so the resulting echo is recognized and suppressed.
func (p *Project) Write(ctx context.Context, targetPath string, newContent string) error {
	id, ok := p.uniqueFor(targetPath)
	if !ok {
		return errs.ErrFileNotFound
	}

	var doc ports.DocHandle
	_ = p.run(func() error {
		doc = p.contentDocs[id]
		return nil
	})
	if doc == nil {
		return errs.ErrFileNotFound
	}

	var oldContent string
	if err := json.Unmarshal(doc.Data(), &oldContent); err != nil {
		oldContent = string(doc.Data())
	}
	if newContent == "" {
		newContent = "\n"
	}
	op := opcodec.MinimalDiff(oldContent, newContent)

	_ = p.run(func() error {
		p.echoes.Add(id.String())
		return nil
	})
	if err := doc.SubmitOp(ctx, op, p.localSource); err != nil {
		return fmt.Errorf("submit write op: %w", err)
	}
	return nil
}

// Save requests a server-side persist of the content Doc's current
// state; acknowledgement arrives asynchronously via the OnDocSave
// callback wired in Link, which calls markClean.
func (p *Project) Save(ctx context.Context, targetPath string) error {
	id, ok := p.uniqueFor(targetPath)
	if !ok {
		return errs.ErrFileNotFound
	}
	return p.realtime.SendRaw(ctx, fmt.Sprintf("doc:save:%s", id.String()))
}

// Entry is one placed file or folder, as returned by Snapshot.
type Entry struct {
	Path     string
	IsFolder bool
	UniqueID model.UniqueID
}

// Snapshot returns every currently placed path, for DiskMirror's initial
// reconciliation pass against the real file system.
func (p *Project) Snapshot() []Entry {
	var out []Entry
	_ = p.run(func() error {
		out = make([]Entry, 0, len(p.files))
		for path, vf := range p.files {
			if path == "" {
				continue // synthetic root, never materialized directly
			}
			out = append(out, Entry{Path: path, IsFolder: vf.IsFolder, UniqueID: vf.UniqueID})
		}
		return nil
	})
	return out
}

// Resync re-fetches the full asset list and adopts any asset the
// project does not yet track. Invoked by the embedding host in response
// to an asset.new messenger notification, which carries only an id and
// name and not a full asset record — re-listing is simpler than adding
// a single-asset REST endpoint for what is already a rare event.
func (p *Project) Resync(ctx context.Context) error {
	projectID, branchID := p.identity()
	assets, err := p.rest.ProjectAssets(ctx, projectID, branchID, "full")
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	var unseen []model.Asset
	_ = p.run(func() error {
		for _, a := range assets {
			if _, tracked := p.assets[a.UniqueID]; !tracked {
				unseen = append(unseen, a)
			}
		}
		return nil
	})

	for _, a := range sortByDepthAscending(unseen) {
		if err := p.adoptCreatedAsset(ctx, a); err != nil {
			p.signal.Recoverable(err)
		}
	}
	return nil
}

// FileContent returns the current in-memory content snapshot for a
// placed file, without touching disk — used for assets such as the
// project's .pcignore file, whose content is tracked the same way as
// any other file asset.
func (p *Project) FileContent(targetPath string) (string, bool) {
	id, ok := p.uniqueFor(targetPath)
	if !ok {
		return "", false
	}
	var doc ports.DocHandle
	_ = p.run(func() error {
		doc = p.contentDocs[id]
		return nil
	})
	if doc == nil {
		return "", false
	}
	var content string
	if err := json.Unmarshal(doc.Data(), &content); err != nil {
		content = string(doc.Data())
	}
	return content, true
}

func (p *Project) uniqueFor(targetPath string) (model.UniqueID, bool) {
	var id model.UniqueID
	var ok bool
	_ = p.run(func() error {
		vf, found := p.files[targetPath]
		if found {
			id, ok = vf.UniqueID, true
		}
		return nil
	})
	return id, ok
}

// uniqueForKind is uniqueFor plus the asset's current kind, used by
// Delete to confirm a path still names the asset the caller thinks it
// does before sending a destructive request.
func (p *Project) uniqueForKind(targetPath string) (model.UniqueID, model.AssetType, bool) {
	var id model.UniqueID
	var kind model.AssetType
	var ok bool
	_ = p.run(func() error {
		vf, found := p.files[targetPath]
		if !found {
			return nil
		}
		asset, foundAsset := p.assets[vf.UniqueID]
		if !foundAsset {
			return nil
		}
		id, kind, ok = vf.UniqueID, asset.Type, true
		return nil
	})
	return id, kind, ok
}

// resolveFolder resolves a workspace path to the UniqueID of the folder
// asset placed there, or ok=false if no such folder is currently placed
// (the empty path always resolves to the synthetic root, UniqueID 0).
func (p *Project) resolveFolder(folderPath string) (model.UniqueID, bool) {
	if folderPath == "" {
		return 0, true
	}
	var id model.UniqueID
	var ok bool
	_ = p.run(func() error {
		vf, found := p.files[folderPath]
		if found && vf.IsFolder {
			id, ok = vf.UniqueID, true
		}
		return nil
	})
	return id, ok
}

func (p *Project) identity() (projectID, branchID string) {
	_ = p.run(func() error {
		projectID, branchID = p.projectID, p.branchID
		return nil
	})
	return projectID, branchID
}
