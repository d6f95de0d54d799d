package project

import (
	"strings"

	"github.com/scenehub/projectsync/internal/bimap"
	"github.com/scenehub/projectsync/internal/errs"
	"github.com/scenehub/projectsync/internal/model"
)

// assetPath derives the workspace path for uniqueID, folding its
// ancestor id sequence (duplicates filtered, order preserved — the
// server has been observed to emit repeated ancestor ids) into names via
// the bimap, then appending the leaf name. overridePath/overrideName let
// callers compute a prospective path before committing a rename.
func (p *Project) assetPath(uniqueID model.UniqueID, overridePath []model.ItemID, overrideName string) (string, error) {
	asset, ok := p.assets[uniqueID]
	if !ok {
		return "", errs.ErrMissingAssetMapping
	}

	ancestorPath := asset.Path
	if overridePath != nil {
		ancestorPath = overridePath
	}
	name := asset.Name
	if overrideName != "" {
		name = overrideName
	}

	deduped := bimap.DedupeOrdered(ancestorPath)
	segments := make([]string, 0, len(deduped)+1)
	for _, ancestorItemID := range deduped {
		ancestorUnique, ok := p.idToUnique.UniqueFor(ancestorItemID)
		if !ok {
			p.signal.Recoverable(errs.ErrMissingAssetMapping)
			return "", errs.ErrMissingAssetMapping
		}
		ancestorAsset, ok := p.assets[ancestorUnique]
		if !ok {
			p.signal.Recoverable(errs.ErrMissingAssetMapping)
			return "", errs.ErrMissingAssetMapping
		}
		segments = append(segments, ancestorAsset.Name)
	}
	segments = append(segments, name)
	return strings.Join(segments, "/"), nil
}

// checkCollision reports whether uniqueID's asset collides with an
// existing entry: either its computed path is already occupied in
// `files`, or one of its ancestors is itself collided. On collision it
// is added to the collisions set.
func (p *Project) checkCollision(uniqueID model.UniqueID, path string) bool {
	asset := p.assets[uniqueID]

	if _, occupied := p.files[path]; occupied {
		p.collisions.Add(uniqueID)
		p.collidedPaths[uniqueID] = path
		return true
	}

	for _, ancestorItemID := range bimap.DedupeOrdered(asset.Path) {
		ancestorUnique, ok := p.idToUnique.UniqueFor(ancestorItemID)
		if ok && p.collisions.Contains(ancestorUnique) {
			p.collisions.Add(uniqueID)
			p.collidedPaths[uniqueID] = path
			return true
		}
	}

	return false
}

// parentPath returns the parent folder path of a slash-joined path, or
// "" for a root-level path.
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// setFile inserts or overwrites a files entry, keeping the uniqueToPath
// reverse index in lockstep.
func (p *Project) setFile(path string, vf model.VirtualFile) {
	p.files[path] = vf
	p.uniqueToPath[vf.UniqueID] = path
}

// removeFile deletes a files entry, keeping uniqueToPath in lockstep.
func (p *Project) removeFile(path string) {
	if vf, ok := p.files[path]; ok {
		delete(p.uniqueToPath, vf.UniqueID)
	}
	delete(p.files, path)
}

// renameFilesPrefix moves every entry in `files` whose key is `from` or
// starts with `from+"/"` to the corresponding `to`-prefixed key,
// updating uniqueToPath for each moved entry.
func (p *Project) renameFilesPrefix(from, to string) {
	type rekey struct {
		oldKey, newKey string
		vf             model.VirtualFile
	}
	var moves []rekey
	prefix := from + "/"
	for key, vf := range p.files {
		if key == from {
			moves = append(moves, rekey{key, to, vf})
		} else if strings.HasPrefix(key, prefix) {
			moves = append(moves, rekey{key, to + "/" + strings.TrimPrefix(key, prefix), vf})
		}
	}
	for _, m := range moves {
		p.removeFile(m.oldKey)
	}
	for _, m := range moves {
		p.setFile(m.newKey, m.vf)
	}
}
