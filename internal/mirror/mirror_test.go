package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenehub/projectsync/internal/editorhost"
	"github.com/scenehub/projectsync/internal/errs"
	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
	"github.com/scenehub/projectsync/internal/project"
)

// stubDoc is a ports.DocHandle with a fixed JSON-encoded snapshot and no
// op stream — enough to drive Mirror's reconcile pass, which only reads
// Data() once per file at link time.
type stubDoc struct{ data json.RawMessage }

func (d *stubDoc) Data() json.RawMessage { return d.data }
func (d *stubDoc) OnOp(func([]model.TextOp, []model.AssetOp, string)) {}
func (d *stubDoc) Off()                                              {}
func (d *stubDoc) SubmitOp(context.Context, any, string) error        { return nil }

type stubRealtime struct {
	disconnected chan struct{}
}

func newStubRealtime() *stubRealtime {
	return &stubRealtime{disconnected: make(chan struct{})}
}

func (r *stubRealtime) Subscribe(ctx context.Context, collection, key string) (ports.DocHandle, error) {
	return &stubDoc{data: json.RawMessage(`""`)}, nil
}

func (r *stubRealtime) BulkSubscribe(ctx context.Context, collection string, keys []string) (map[string]ports.DocHandle, error) {
	out := make(map[string]ports.DocHandle, len(keys))
	for _, k := range keys {
		out[k] = &stubDoc{data: json.RawMessage(`"hello"`)}
	}
	return out, nil
}

func (r *stubRealtime) Unsubscribe(collection, key string)            {}
func (r *stubRealtime) BulkUnsubscribe(collection string, keys []string) {}
func (r *stubRealtime) SendRaw(ctx context.Context, payload string) error { return nil }
func (r *stubRealtime) OnDocSave(fn func(ports.DocSaveState, model.UniqueID)) {}
func (r *stubRealtime) Disconnected() <-chan struct{}                 { return r.disconnected }

type stubREST struct {
	mu     sync.Mutex
	assets []model.Asset
	nextID int64
	delay  map[string]time.Duration // artificial per-name AssetCreate latency, for concurrency tests
}

func (s *stubREST) AssetCreate(ctx context.Context, projectID, branchID string, req ports.AssetCreateRequest) (model.Asset, error) {
	if d, ok := s.delay[req.Name]; ok {
		time.Sleep(d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := model.UniqueID(1000 + s.nextID)

	var ancestors []model.ItemID
	if req.Parent != nil {
		for _, a := range s.assets {
			if a.UniqueID == *req.Parent {
				ancestors = append(append([]model.ItemID{}, a.Path...), a.ItemID)
			}
		}
	}

	asset := model.Asset{UniqueID: id, ItemID: model.ItemID(id), Type: req.Type, Name: req.Name, Path: ancestors}
	if req.Type != model.AssetTypeFolder {
		asset.File = &model.AssetFile{Filename: req.Filename}
	}
	s.assets = append(s.assets, asset)
	return asset, nil
}
func (s *stubREST) AssetRename(ctx context.Context, projectID, branchID string, id model.UniqueID, newName string) (model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assets {
		if a.UniqueID == id {
			s.assets[i].Name = newName
			return s.assets[i], nil
		}
	}
	return model.Asset{}, nil
}
func (s *stubREST) ProjectAssets(ctx context.Context, projectID, branchID, view string) ([]model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assets, nil
}
func (s *stubREST) ProjectBranches(ctx context.Context, projectID string) ([]ports.Branch, error) {
	return nil, nil
}

type stubMessenger struct{}

func (stubMessenger) Subscribe(ctx context.Context) (<-chan ports.MessengerEvent, error) {
	return make(chan ports.MessengerEvent), nil
}
func (stubMessenger) Close() {}

func newLinkedProjectAndMirror(t *testing.T, assets []model.Asset) (*project.Project, *Mirror, *editorhost.Host) {
	t.Helper()
	rest := &stubREST{assets: assets}
	p := project.New(rest, newStubRealtime(), stubMessenger{}, errs.NewSignal(16))
	require.NoError(t, p.Link(context.Background(), "proj-1", "main"))
	t.Cleanup(func() { p.Unlink() })

	host := editorhost.New()
	m := New(host, p, errs.NewSignal(16))
	require.NoError(t, m.Link(context.Background()))
	t.Cleanup(m.Unlink)

	return p, m, host
}

func fileAsset(id model.UniqueID, name, filename string) model.Asset {
	return model.Asset{
		UniqueID: id, ItemID: model.ItemID(id), Type: model.AssetTypeText, Name: name,
		File: &model.AssetFile{Filename: filename},
	}
}

func folderAsset(id model.UniqueID, name string) model.Asset {
	return model.Asset{UniqueID: id, ItemID: model.ItemID(id), Type: model.AssetTypeFolder, Name: name}
}

func TestLinkReconcilesExistingAssetsToDisk(t *testing.T) {
	_, _, host := newLinkedProjectAndMirror(t, []model.Asset{
		folderAsset(1, "docs"),
		fileAsset(2, "readme.txt", "readme.txt"),
	})

	content, err := host.ReadFile("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	stat, err := host.Stat("docs")
	require.NoError(t, err)
	assert.True(t, stat.IsDir)
}

func TestLinkSkipsFilesAlreadyPresentOnDisk(t *testing.T) {
	host := editorhost.New()
	require.NoError(t, host.WriteFile("readme.txt", []byte("local copy, not server's")))

	rest := &stubREST{assets: []model.Asset{fileAsset(2, "readme.txt", "readme.txt")}}
	p := project.New(rest, newStubRealtime(), stubMessenger{}, errs.NewSignal(16))
	require.NoError(t, p.Link(context.Background(), "proj-1", "main"))
	t.Cleanup(func() { p.Unlink() })

	m := New(host, p, errs.NewSignal(16))
	require.NoError(t, m.Link(context.Background()))
	t.Cleanup(m.Unlink)

	content, err := host.ReadFile("readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "local copy, not server's", string(content),
		"reconcile must not clobber a pre-existing local file")
}

func TestDoubleLinkReturnsAlreadyLinked(t *testing.T) {
	_, m, _ := newLinkedProjectAndMirror(t, nil)
	err := m.Link(context.Background())
	assert.ErrorIs(t, err, errs.ErrAlreadyLinked)
}

func TestUnlinkIsIdempotent(t *testing.T) {
	_, m, _ := newLinkedProjectAndMirror(t, nil)
	m.Unlink()
	m.Unlink() // second call must not panic or block
}

func TestCreateOnDiskPropagatesToProject(t *testing.T) {
	p, _, host := newLinkedProjectAndMirror(t, nil)

	require.NoError(t, host.WriteFile("new.txt", []byte("from disk")))
	host.Emit(ports.FSEvent{Kind: ports.FSCreate, Path: "new.txt"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		found := false
		for _, e := range p.Snapshot() {
			if e.Path == "new.txt" {
				found = true
			}
		}
		if found {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for disk-originated create to settle")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestDiskDeleteCreatePairCoalescesIntoRename covers a same-tick
// delete+create sharing a leaf name: the coalescer must fold the pair
// into a single Rename dispatch rather than a delete followed by an
// unrelated create of a brand-new asset.
func TestDiskDeleteCreatePairCoalescesIntoRename(t *testing.T) {
	p, _, host := newLinkedProjectAndMirror(t, []model.Asset{
		folderAsset(1, "docs"),
		fileAsset(2, "notes.txt", "notes.txt"),
	})

	require.NoError(t, host.Rename("notes.txt", "docs/notes.txt"))
	host.Emit(ports.FSEvent{Kind: ports.FSDelete, Path: "notes.txt"})
	host.Emit(ports.FSEvent{Kind: ports.FSCreate, Path: "docs/notes.txt"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		path, ok := p.Path(2)
		if ok && path == "docs/notes.txt" {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for delete+create pair to coalesce into a rename, asset 2 at %q (ok=%v)", path, ok)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestNestedDiskCreatesDispatchParentBeforeChild covers two related
// creates landing in the same batch: since the child's path is nested
// under the parent's, the depGate must hold the child's dispatch back
// until the parent folder's create has completed, so the child's
// Project.Create never races a not-yet-existing parent.
func TestNestedDiskCreatesDispatchParentBeforeChild(t *testing.T) {
	p, _, host := newLinkedProjectAndMirror(t, nil)

	require.NoError(t, host.MkdirAll("nested"))
	require.NoError(t, host.WriteFile("nested/file.txt", []byte("hi")))

	host.Emit(ports.FSEvent{Kind: ports.FSCreate, Path: "nested"})
	host.Emit(ports.FSEvent{Kind: ports.FSCreate, Path: "nested/file.txt"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var folderSeen, fileSeen bool
		for _, e := range p.Snapshot() {
			if e.Path == "nested" {
				folderSeen = true
			}
			if e.Path == "nested/file.txt" {
				fileSeen = true
			}
		}
		if folderSeen && fileSeen {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("timed out waiting for nested create to settle — parent-before-child ordering likely violated")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestUnrelatedSiblingCreatesDispatchWithoutWaiting covers two
// unrelated creates in the same batch: the depGate must not serialize
// them, so a slow create for one path cannot hold back an unrelated
// sibling's dispatch.
func TestUnrelatedSiblingCreatesDispatchWithoutWaiting(t *testing.T) {
	rest := &stubREST{delay: map[string]time.Duration{"slow.txt": 300 * time.Millisecond}}
	p := project.New(rest, newStubRealtime(), stubMessenger{}, errs.NewSignal(16))
	require.NoError(t, p.Link(context.Background(), "proj-1", "main"))
	t.Cleanup(func() { p.Unlink() })

	host := editorhost.New()
	m := New(host, p, errs.NewSignal(16))
	require.NoError(t, m.Link(context.Background()))
	t.Cleanup(m.Unlink)

	require.NoError(t, host.WriteFile("slow.txt", []byte("s")))
	require.NoError(t, host.WriteFile("fast.txt", []byte("f")))
	host.Emit(ports.FSEvent{Kind: ports.FSCreate, Path: "slow.txt"})
	host.Emit(ports.FSEvent{Kind: ports.FSCreate, Path: "fast.txt"})

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		for _, e := range p.Snapshot() {
			if e.Path == "fast.txt" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("fast.txt create waited on unrelated slow.txt create")
}
