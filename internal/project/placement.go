package project

import (
	"context"
	"encoding/json"

	"github.com/scenehub/projectsync/internal/model"
)

// placeAsset inserts a folder asset into `files` at its computed path,
// or records it as collided. Returns true if a collision occurred.
func (p *Project) placeAsset(id model.UniqueID) bool {
	path, err := p.assetPath(id, nil, "")
	if err != nil {
		return true
	}
	if p.checkCollision(id, path) {
		return true
	}
	p.setFile(path, model.NewFolder(id))
	return false
}

// placeFileAsset implements the file side of the per-asset state
// machine: a file asset whose server filename is not yet
// populated stays TRACKED (not placed, no content doc yet); once its
// filename is set it transitions to PLACED and its content Doc is
// subscribed by the caller (Link, or tryPlaceNewlyNamedFile for assets
// that arrive without a filename and get one later).
//
// Returns (placed, collided).
func (p *Project) placeFileAsset(ctx context.Context, asset model.Asset) (bool, bool) {
	if asset.File == nil || asset.File.Filename == "" {
		return false, false // TRACKED only; not yet eligible for PLACED
	}
	path, err := p.assetPath(asset.UniqueID, nil, "")
	if err != nil {
		return false, true
	}
	if p.checkCollision(asset.UniqueID, path) {
		return false, true
	}
	p.setFile(path, model.NewFile(asset.UniqueID))
	return true, false
}

// tryPlaceNewlyNamedFile re-evaluates a file asset whose filename just
// became populated by a remote op, subscribing its content Doc and
// placing it in `files` for the first time.
func (p *Project) tryPlaceNewlyNamedFile(ctx context.Context, id model.UniqueID) {
	asset, ok := p.assets[id]
	if !ok || asset.IsFolder() {
		return
	}
	if _, alreadyPlaced := p.uniqueToPath[id]; alreadyPlaced {
		return
	}
	placed, collided := p.placeFileAsset(ctx, *asset)
	if collided {
		p.signal.Notify("path collision while placing "+asset.Name, "Show", "Reload")
		return
	}
	if !placed {
		return
	}

	doc, err := p.realtime.Subscribe(ctx, collectionDocuments, id.String())
	if err != nil {
		p.signal.Recoverable(err)
		return
	}
	p.contentDocs[id] = doc
	p.wireContentDoc(id, doc)

	path := p.uniqueToPath[id]
	var content string
	if err := json.Unmarshal(doc.Data(), &content); err != nil {
		content = string(doc.Data())
	}
	p.publish(Event{Kind: EventFileCreate, Path: path, NewContent: content})
}
