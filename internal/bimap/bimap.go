// Package bimap implements a small bijective map between an asset's
// server ItemID and its stable UniqueID. A hand-rolled type is used here
// rather than a third-party bimap library: the requirement is narrow
// enough (two fixed integer types, insert/delete/lookup-both-ways) that
// pulling in a dependency for it would not pay for itself.
package bimap

import "github.com/scenehub/projectsync/internal/model"

// Bimap is a bijective map between model.ItemID and model.UniqueID. It is
// not safe for concurrent use; callers serialize access on the project
// scheduler goroutine.
type Bimap struct {
	fwd map[model.ItemID]model.UniqueID
	rev map[model.UniqueID]model.ItemID
}

// New returns an empty Bimap.
func New() *Bimap {
	return &Bimap{
		fwd: make(map[model.ItemID]model.UniqueID),
		rev: make(map[model.UniqueID]model.ItemID),
	}
}

// Put records the association, replacing any previous entries that would
// otherwise violate bijectivity (an old ItemID mapped from the same
// UniqueID, or an old UniqueID mapped from the same ItemID).
func (b *Bimap) Put(item model.ItemID, unique model.UniqueID) {
	if oldUnique, ok := b.fwd[item]; ok {
		delete(b.rev, oldUnique)
	}
	if oldItem, ok := b.rev[unique]; ok {
		delete(b.fwd, oldItem)
	}
	b.fwd[item] = unique
	b.rev[unique] = item
}

// UniqueFor resolves an ItemID to its UniqueID.
func (b *Bimap) UniqueFor(item model.ItemID) (model.UniqueID, bool) {
	u, ok := b.fwd[item]
	return u, ok
}

// ItemFor resolves a UniqueID to its ItemID.
func (b *Bimap) ItemFor(unique model.UniqueID) (model.ItemID, bool) {
	i, ok := b.rev[unique]
	return i, ok
}

// DeleteByUnique removes the entry for a given UniqueID, if present.
func (b *Bimap) DeleteByUnique(unique model.UniqueID) {
	if item, ok := b.rev[unique]; ok {
		delete(b.fwd, item)
		delete(b.rev, unique)
	}
}

// Len returns the number of associations currently held.
func (b *Bimap) Len() int {
	return len(b.fwd)
}

// Clear removes all associations.
func (b *Bimap) Clear() {
	b.fwd = make(map[model.ItemID]model.UniqueID)
	b.rev = make(map[model.UniqueID]model.ItemID)
}

// DedupeOrdered returns the input slice with duplicate ids removed,
// preserving first-occurrence order. The server has been observed to
// emit repeated ancestor ids inside an asset's path array; callers fold
// through this before resolving names.
func DedupeOrdered(ids []model.ItemID) []model.ItemID {
	seen := make(map[model.ItemID]struct{}, len(ids))
	out := make([]model.ItemID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
