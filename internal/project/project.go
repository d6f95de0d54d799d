// Package project implements VirtualProject: the in-memory model of a
// linked project, mediating every state change through a realtime
// document service and a REST asset API.
//
// Mutation is serialized the way a sync engine serializes state changes
// from multiple event sources (one goroutine per event source —
// websocket, file watcher — funneled into channel-read loops): every
// public mutator hands a closure to one dedicated scheduler goroutine
// and blocks for its result, so `files`/`collisions`/`idToUnique` are
// only ever touched from that one goroutine.
package project

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/scenehub/projectsync/internal/bimap"
	"github.com/scenehub/projectsync/internal/echoset"
	"github.com/scenehub/projectsync/internal/errs"
	"github.com/scenehub/projectsync/internal/model"
	"github.com/scenehub/projectsync/internal/ports"
)

const (
	collectionAssets    = "assets"
	collectionDocuments = "documents"
	subscribeBatchSize  = 256
)

// LocalSourcePrefix tags every op this process submits so the remote-op
// handler can recognize and ignore its own echoes.
const LocalSourcePrefix = "local:"

// Project is VirtualProject.
type Project struct {
	rest      ports.RESTClient
	realtime  ports.RealtimeClient
	messenger ports.Messenger
	signal    *errs.Signal

	localSource string // LocalSourcePrefix + a uuid minted once in New, kept across relinks

	mu         sync.Mutex // guards the fields below; only the scheduler goroutine writes them
	linked     bool
	projectID  string
	branchID   string
	assets      map[model.UniqueID]*model.Asset
	files       map[string]model.VirtualFile
	uniqueToPath map[model.UniqueID]string // reverse index of files, kept in lockstep
	idToUnique  *bimap.Bimap
	collisions  mapset.Set[model.UniqueID]
	collidedPaths map[model.UniqueID]string // the path each collided id lost out on, for Collisions()
	assetDocs   map[model.UniqueID]ports.DocHandle
	contentDocs map[model.UniqueID]ports.DocHandle

	// echoes counts op echoes this Project expects back for its own
	// submissions (keyed by asset id — a rename registers two, one for
	// the path change and one for the name change) so a self-originated
	// op is suppressed exactly as many times as expected instead of once;
	// a naive single-flag dedup would let the second echo of a paired
	// rename through as if it were a genuine remote change.
	echoes *echoset.Set

	events chan Event

	workCh   chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	teardown []func()
}

// New constructs an unlinked Project.
func New(rest ports.RESTClient, realtime ports.RealtimeClient, messenger ports.Messenger, signal *errs.Signal) *Project {
	p := &Project{
		rest:        rest,
		realtime:    realtime,
		messenger:   messenger,
		signal:      signal,
		localSource: LocalSourcePrefix + uuid.NewString(),
		assets:       make(map[model.UniqueID]*model.Asset),
		files:        make(map[string]model.VirtualFile),
		uniqueToPath: make(map[model.UniqueID]string),
		idToUnique:  bimap.New(),
		collisions:  mapset.NewSet[model.UniqueID](),
		collidedPaths: make(map[model.UniqueID]string),
		assetDocs:   make(map[model.UniqueID]ports.DocHandle),
		contentDocs: make(map[model.UniqueID]ports.DocHandle),
		echoes:      echoset.New(),
		events:      make(chan Event, 256),
		workCh:      make(chan func()),
		stopCh:      make(chan struct{}),
	}
	go p.scheduler()
	return p
}

func (p *Project) scheduler() {
	for {
		select {
		case fn := <-p.workCh:
			fn()
		case <-p.stopCh:
			return
		}
	}
}

// run executes fn on the scheduler goroutine and waits for it to finish.
// All public mutators go through run so `files`/`collisions`/`assets`
// are only ever touched from one goroutine.
func (p *Project) run(fn func() error) error {
	resultCh := make(chan error, 1)
	select {
	case p.workCh <- func() { resultCh <- fn() }:
	case <-p.stopCh:
		return errs.ErrProjectNotLinked
	}
	select {
	case err := <-resultCh:
		return err
	case <-p.stopCh:
		return errs.ErrProjectNotLinked
	}
}

// Events returns the channel of model-originated events DiskMirror
// consumes (asset:create/update/delete/rename/save translated into
// Event values, see events.go).
func (p *Project) Events() <-chan Event {
	return p.events
}

// Errors returns the shared error/alert signal.
func (p *Project) Errors() *errs.Signal {
	return p.signal
}

// LocalSource returns this Project instance's op-submission source tag.
func (p *Project) LocalSource() string {
	return p.localSource
}

// Link fetches the asset list, subscribes to the assets/documents
// realtime collections in batches, installs the root folder, then adds
// folders (parents first) and files in path-depth order.
func (p *Project) Link(ctx context.Context, projectID, branchID string) error {
	p.mu.Lock()
	alreadyLinked := p.linked
	p.mu.Unlock()
	if alreadyLinked {
		return errs.ErrProjectAlreadyLinked
	}

	assets, err := p.rest.ProjectAssets(ctx, projectID, branchID, "full")
	if err != nil {
		return fmt.Errorf("project assets: %w", err)
	}

	hasUniqueIDs := true
	for _, a := range assets {
		if a.UniqueID == 0 {
			hasUniqueIDs = false
			break
		}
	}
	if !hasUniqueIDs {
		return errs.ErrInvalidTokenScope
	}

	assetKeys := make([]string, 0, len(assets))
	for _, a := range assets {
		assetKeys = append(assetKeys, a.UniqueID.String())
	}
	assetDocs, err := bulkSubscribeBatched(ctx, p.realtime, collectionAssets, assetKeys)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSubscribeFailed, err)
	}

	return p.run(func() error {
		p.projectID = projectID
		p.branchID = branchID
		p.assets = make(map[model.UniqueID]*model.Asset, len(assets))
		p.files = map[string]model.VirtualFile{"": model.NewFolder(0)}
		p.uniqueToPath = make(map[model.UniqueID]string)
		p.idToUnique = bimap.New()
		p.collisions = mapset.NewSet[model.UniqueID]()
		p.collidedPaths = make(map[model.UniqueID]string)
		p.assetDocs = assetDocs
		p.contentDocs = make(map[model.UniqueID]ports.DocHandle)
		p.echoes.Clear()

		byID := make(map[model.UniqueID]*model.Asset, len(assets))
		for i := range assets {
			a := assets[i]
			byID[a.UniqueID] = &a
			p.assets[a.UniqueID] = &a
			p.idToUnique.Put(a.ItemID, a.UniqueID)
		}

		sorted := sortByDepthAscending(assets)

		anyCollision := false
		for _, a := range sorted {
			if a.IsFolder() {
				if p.placeAsset(a.UniqueID) {
					anyCollision = true
				}
			}
		}
		for _, a := range sorted {
			if !a.IsFolder() {
				ok, collided := p.placeFileAsset(ctx, a)
				if collided {
					anyCollision = true
				}
				_ = ok
			}
		}

		if anyCollision {
			p.signal.Notify("some files could not be placed due to path collisions", "Show", "Reload")
		}

		contentDocKeys := make([]string, 0, len(sorted))
		for _, a := range sorted {
			if !a.IsFolder() && a.File != nil && a.File.Filename != "" {
				contentDocKeys = append(contentDocKeys, a.UniqueID.String())
			}
		}
		if len(contentDocKeys) > 0 {
			docs, err := bulkSubscribeBatched(ctx, p.realtime, collectionDocuments, contentDocKeys)
			if err != nil {
				p.signal.Recoverable(fmt.Errorf("%w: %v", errs.ErrSubscribeFailed, err))
			} else {
				for key, doc := range docs {
					id := mustParseUniqueID(key)
					p.contentDocs[id] = doc
					p.wireContentDoc(id, doc)
				}
			}
		}

		for id, doc := range p.assetDocs {
			p.wireAssetDoc(id, doc)
		}

		p.realtime.OnDocSave(func(state ports.DocSaveState, id model.UniqueID) {
			if state != ports.DocSaveSuccess {
				return
			}
			_ = p.run(func() error {
				p.markClean(id)
				return nil
			})
		})

		p.linked = true
		return nil
	})
}

// Unlink runs all registered teardown closures in parallel, clears all
// state, and returns the pre-unlink identity so the caller may re-link.
func (p *Project) Unlink() (projectID, branchID string, err error) {
	err = p.run(func() error {
		if !p.linked {
			return errs.ErrProjectNotLinked
		}
		var wg sync.WaitGroup
		for _, fn := range p.teardown {
			wg.Add(1)
			go func(fn func()) {
				defer wg.Done()
				fn()
			}(fn)
		}
		wg.Wait()
		p.teardown = nil

		for id, doc := range p.assetDocs {
			doc.Off()
			p.realtime.Unsubscribe(collectionAssets, id.String())
		}
		for id, doc := range p.contentDocs {
			doc.Off()
			p.realtime.Unsubscribe(collectionDocuments, id.String())
		}

		projectID, branchID = p.projectID, p.branchID
		p.assets = make(map[model.UniqueID]*model.Asset)
		p.files = make(map[string]model.VirtualFile)
		p.uniqueToPath = make(map[model.UniqueID]string)
		p.idToUnique = bimap.New()
		p.collisions = mapset.NewSet[model.UniqueID]()
		p.collidedPaths = make(map[model.UniqueID]string)
		p.assetDocs = make(map[model.UniqueID]ports.DocHandle)
		p.contentDocs = make(map[model.UniqueID]ports.DocHandle)
		p.echoes.Clear()
		p.linked = false
		return nil
	})
	return projectID, branchID, err
}

func bulkSubscribeBatched(ctx context.Context, rt ports.RealtimeClient, collection string, keys []string) (map[model.UniqueID]ports.DocHandle, error) {
	result := make(map[model.UniqueID]ports.DocHandle, len(keys))
	for start := 0; start < len(keys); start += subscribeBatchSize {
		end := start + subscribeBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		docs, err := rt.BulkSubscribe(ctx, collection, batch)
		if err != nil {
			return nil, err
		}
		for key, doc := range docs {
			result[mustParseUniqueID(key)] = doc
		}
	}
	return result, nil
}

func mustParseUniqueID(key string) model.UniqueID {
	var id int64
	_, err := fmt.Sscanf(key, "%d", &id)
	if err != nil {
		slog.Warn("project: malformed doc key", "key", key, "error", err)
		return 0
	}
	return model.UniqueID(id)
}

// sortByDepthAscending orders assets so parent folders are always
// visited before any of their descendants.
func sortByDepthAscending(assets []model.Asset) []model.Asset {
	sorted := append([]model.Asset(nil), assets...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j-1].Path) > len(sorted[j].Path); j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted
}
