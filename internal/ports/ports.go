// Package ports declares the Go interfaces for the four external
// collaborators the sync core depends on: the realtime document service,
// the REST asset API, the messenger, and the editor host. The sync core
// (internal/project, internal/mirror, internal/opcodec) depends only on
// these interfaces; concrete adapters live in internal/realtime,
// internal/restapi, internal/messenger, and internal/editorhost.
package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scenehub/projectsync/internal/model"
)

// DocSaveState is the state of a "doc:save" acknowledgement.
type DocSaveState string

const (
	DocSaveSuccess DocSaveState = "success"
	DocSaveError   DocSaveState = "error"
)

// DocHandle is a subscribed realtime document: a JSON snapshot plus an
// op stream (data, on("op", ...), off, submitOp).
type DocHandle interface {
	// Data returns the current JSON snapshot (asset docs) or the raw
	// text buffer as a JSON string (content docs).
	Data() json.RawMessage
	// OnOp registers the callback invoked for every remote op applied
	// to this doc, including ops this process itself submitted (the
	// source string lets the caller recognize its own echoes via
	// LOCAL_OT_SOURCE matching).
	OnOp(fn func(ops []model.TextOp, assetOps []model.AssetOp, source string))
	// Off unsubscribes and releases the op callback. Idempotent.
	Off()
	// SubmitOp submits one op against this doc, tagged with source.
	SubmitOp(ctx context.Context, op any, source string) error
}

// RealtimeClient is the realtime document service collaborator.
type RealtimeClient interface {
	Subscribe(ctx context.Context, collection, key string) (DocHandle, error)
	BulkSubscribe(ctx context.Context, collection string, keys []string) (map[string]DocHandle, error)
	Unsubscribe(collection, key string)
	BulkUnsubscribe(collection string, keys []string)
	// SendRaw sends a raw, non-doc payload: the "fs"/"doc:save:<id>"
	// messages.
	SendRaw(ctx context.Context, payload string) error
	// OnDocSave registers the callback invoked on every doc:save
	// acknowledgement from the server.
	OnDocSave(fn func(state DocSaveState, uniqueID model.UniqueID))
	// Disconnected returns a channel closed when the client detects a
	// transport disconnect, surfaced as a signal the higher layer reacts to.
	Disconnected() <-chan struct{}
}

// AssetCreateRequest is the payload for RESTClient.AssetCreate.
type AssetCreateRequest struct {
	Type     model.AssetType
	Name     string
	Parent   *model.UniqueID
	Preload  bool
	Filename string
	File     []byte
}

// Branch describes one branch of a project.
type Branch struct {
	ID   string
	Name string
}

// RESTClient is the REST asset-CRUD collaborator.
type RESTClient interface {
	AssetCreate(ctx context.Context, projectID, branchID string, req AssetCreateRequest) (model.Asset, error)
	AssetRename(ctx context.Context, projectID, branchID string, id model.UniqueID, newName string) (model.Asset, error)
	ProjectAssets(ctx context.Context, projectID, branchID, view string) ([]model.Asset, error)
	ProjectBranches(ctx context.Context, projectID string) ([]Branch, error)
}

// MessengerEventType discriminates MessengerEvent payloads.
type MessengerEventType string

const (
	MsgAssetNew     MessengerEventType = "asset.new"
	MsgAssetsDelete MessengerEventType = "assets.delete"
)

// MessengerNewAsset is the payload of an asset.new messenger event.
type MessengerNewAsset struct {
	ID       model.UniqueID
	Name     string
	Type     model.AssetType
	BranchID string
}

// MessengerEvent is one event delivered by the Messenger collaborator.
type MessengerEvent struct {
	Type        MessengerEventType
	NewAsset    *MessengerNewAsset // set when Type == MsgAssetNew
	DeletedIDs  []string           // set when Type == MsgAssetsDelete
}

// Messenger is the out-of-band notification collaborator delivering
// asset.new / assets.delete events.
type Messenger interface {
	Subscribe(ctx context.Context) (<-chan MessengerEvent, error)
	Close()
}

// TextEdit is a single range-addressed edit against an open editor
// document, as produced by OpCodec.sharedbToEditor.
type TextEdit struct {
	StartOffset int
	EndOffset   int
	NewText     string
}

// RangeChange is a single range-addressed change reported by the editor
// host's change event, the input to OpCodec.editorChangesToOps.
type RangeChange struct {
	StartOffset int
	EndOffset   int
	NewText     string
}

// EditorDocument is a handle to one open document in the editor host.
type EditorDocument interface {
	Path() string
	Text() string
	IsDirty() bool
}

// FileStat is minimal stat info for a workspace path.
type FileStat struct {
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// DirEntry is one entry returned by EditorHost.ReadDir.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FSEventKind discriminates FSEvent.Kind.
type FSEventKind int

const (
	FSCreate FSEventKind = iota
	FSChange
	FSDelete
)

// FSEvent is one raw filesystem event from the editor host's watcher.
type FSEvent struct {
	Kind FSEventKind
	Path string // workspace-relative, slash-joined
}

// EditorHost is the editor/workspace collaborator: file system access,
// open-document editing, and a file watcher.
type EditorHost interface {
	OpenDocument(ctx context.Context, path string) (EditorDocument, error)
	// FindOpenDocument returns the already-open document for path, if
	// any, without opening a new one.
	FindOpenDocument(path string) (EditorDocument, bool)
	ApplyEdit(ctx context.Context, doc EditorDocument, edits []TextEdit) error
	SaveDocument(ctx context.Context, doc EditorDocument) error

	Stat(path string) (FileStat, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte) error
	MkdirAll(path string) error
	RemoveAll(path string) error
	Rename(oldPath, newPath string) error
	ReadDir(path string) ([]DirEntry, error)

	Watch(ctx context.Context) (<-chan FSEvent, error)
}
