package project

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

// fakeDoc is a minimal in-memory ports.DocHandle: no op stream, just a
// fixed snapshot, enough for the Link/Create/Resync/Retire paths that
// don't depend on receiving an op callback.
type fakeDoc struct {
	mu   sync.Mutex
	data json.RawMessage
	fn   func(ops []model.TextOp, assetOps []model.AssetOp, source string)
}

func newFakeDoc(data json.RawMessage) *fakeDoc {
	return &fakeDoc{data: data}
}

func (d *fakeDoc) Data() json.RawMessage { return d.data }

func (d *fakeDoc) OnOp(fn func(ops []model.TextOp, assetOps []model.AssetOp, source string)) {
	d.mu.Lock()
	d.fn = fn
	d.mu.Unlock()
}

func (d *fakeDoc) Off() {}

func (d *fakeDoc) SubmitOp(ctx context.Context, op any, source string) error {
	return nil
}

// fakeRealtime is a ports.RealtimeClient that subscribes to an empty doc
// for every key; it never delivers ops of its own accord.
type fakeRealtime struct {
	mu            sync.Mutex
	disconnected  chan struct{}
	onDocSave     func(ports.DocSaveState, model.UniqueID)
	subscribed    map[string]*fakeDoc
	unsubscribed  []string // "collection/key" per Unsubscribe call
	raw           []string // every SendRaw payload, in order
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		disconnected: make(chan struct{}),
		subscribed:   make(map[string]*fakeDoc),
	}
}

func (r *fakeRealtime) Subscribe(ctx context.Context, collection, key string) (ports.DocHandle, error) {
	doc := newFakeDoc(json.RawMessage(`""`))
	r.mu.Lock()
	r.subscribed[collection+"/"+key] = doc
	r.mu.Unlock()
	return doc, nil
}

func (r *fakeRealtime) BulkSubscribe(ctx context.Context, collection string, keys []string) (map[string]ports.DocHandle, error) {
	out := make(map[string]ports.DocHandle, len(keys))
	for _, k := range keys {
		doc := newFakeDoc(json.RawMessage(`""`))
		r.mu.Lock()
		r.subscribed[collection+"/"+k] = doc
		r.mu.Unlock()
		out[k] = doc
	}
	return out, nil
}

func (r *fakeRealtime) Unsubscribe(collection, key string) {
	r.mu.Lock()
	r.unsubscribed = append(r.unsubscribed, collection+"/"+key)
	r.mu.Unlock()
}

func (r *fakeRealtime) BulkUnsubscribe(collection string, keys []string) {}

func (r *fakeRealtime) SendRaw(ctx context.Context, payload string) error {
	r.mu.Lock()
	r.raw = append(r.raw, payload)
	r.mu.Unlock()
	return nil
}

func (r *fakeRealtime) OnDocSave(fn func(ports.DocSaveState, model.UniqueID)) {
	r.onDocSave = fn
}

func (r *fakeRealtime) Disconnected() <-chan struct{} { return r.disconnected }

// fakeREST is a ports.RESTClient backed by an in-memory asset list.
type fakeREST struct {
	mu     sync.Mutex
	assets []model.Asset
	nextID int64

	renamed []model.UniqueID // ids passed to AssetRename, in order
}

func newFakeREST(assets []model.Asset) *fakeREST {
	maxID := int64(0)
	for _, a := range assets {
		if int64(a.UniqueID) > maxID {
			maxID = int64(a.UniqueID)
		}
	}
	return &fakeREST{assets: assets, nextID: maxID + 1}
}

func (r *fakeREST) AssetCreate(ctx context.Context, projectID, branchID string, req ports.AssetCreateRequest) (model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := model.UniqueID(r.nextID)
	r.nextID++

	var ancestors []model.ItemID
	if req.Parent != nil {
		for _, a := range r.assets {
			if a.UniqueID == *req.Parent {
				ancestors = append(append([]model.ItemID{}, a.Path...), a.ItemID)
			}
		}
	}

	asset := model.Asset{
		UniqueID: id,
		ItemID:   model.ItemID(id),
		Type:     req.Type,
		Name:     req.Name,
		Path:     ancestors,
		BranchID: branchID,
	}
	if req.Type != model.AssetTypeFolder {
		asset.File = &model.AssetFile{Filename: req.Filename}
	}
	r.assets = append(r.assets, asset)
	return asset, nil
}

func (r *fakeREST) AssetRename(ctx context.Context, projectID, branchID string, id model.UniqueID, newName string) (model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renamed = append(r.renamed, id)
	for i, a := range r.assets {
		if a.UniqueID == id {
			r.assets[i].Name = newName
			return r.assets[i], nil
		}
	}
	return model.Asset{}, nil
}

func (r *fakeREST) ProjectAssets(ctx context.Context, projectID, branchID, view string) ([]model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Asset(nil), r.assets...), nil
}

func (r *fakeREST) ProjectBranches(ctx context.Context, projectID string) ([]ports.Branch, error) {
	return nil, nil
}

// fakeMessenger delivers nothing; Project only stores the reference.
type fakeMessenger struct{}

func (fakeMessenger) Subscribe(ctx context.Context) (<-chan ports.MessengerEvent, error) {
	ch := make(chan ports.MessengerEvent)
	return ch, nil
}

func (fakeMessenger) Close() {}
