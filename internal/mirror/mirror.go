// Package mirror implements DiskMirror: the component that reconciles a
// linked Project's in-memory tree with an editor host's real file
// system, in both directions.
//
// Project-originated events are applied to disk under a per-path lock
// (internal/pathmutex) so a rename in flight cannot race another change
// to either of its exact paths. Disk-originated events are filtered through an echo
// set so writes this mirror itself performed are not fed back into the
// Project as if a user had made them, the same ignore-once shape a file
// watcher uses to avoid reacting to its own writes.
package mirror

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scenehub/projectsync/internal/coalescer"
	"github.com/scenehub/projectsync/internal/echoset"
	"github.com/scenehub/projectsync/internal/errs"
	"github.com/scenehub/projectsync/internal/ignorelist"
	"github.com/scenehub/projectsync/internal/pathmutex"
	"github.com/scenehub/projectsync/internal/ports"
	"github.com/scenehub/projectsync/internal/project"
)

// dispatchConcurrency bounds how many coalesced disk operations the
// mirror applies to the project at once.
const dispatchConcurrency = 8

// Mirror is DiskMirror.
type Mirror struct {
	host   ports.EditorHost
	proj   *project.Project
	signal *errs.Signal
	ignore *ignorelist.List

	chain     *pathmutex.Chain
	echoes    *echoset.Set
	coalescer *coalescer.Coalescer

	mu          sync.Mutex
	contentHash map[string]string // last known content hash per path, for reconcile's summary

	linked bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an unlinked Mirror over host and proj.
func New(host ports.EditorHost, proj *project.Project, signal *errs.Signal) *Mirror {
	m := &Mirror{
		host:        host,
		proj:        proj,
		signal:      signal,
		ignore:      ignorelist.New(nil),
		chain:       pathmutex.New(),
		echoes:      echoset.New(),
		contentHash: make(map[string]string),
	}
	m.coalescer = coalescer.New(coalescer.Handlers{
		Create: m.dispatchCreate,
		Change: m.dispatchChange,
		Delete: m.dispatchDelete,
		Rename: m.dispatchRename,
	}, dispatchConcurrency)
	return m
}

// Link starts the two event-consuming goroutines: one draining the
// Project's Events() channel onto disk, one draining the editor host's
// file watcher up into the Project.
func (m *Mirror) Link(ctx context.Context) error {
	m.mu.Lock()
	if m.linked {
		m.mu.Unlock()
		return errs.ErrAlreadyLinked
	}
	m.linked = true
	m.mu.Unlock()

	if content, ok := m.proj.FileContent(".pcignore"); ok {
		m.ignore = ignorelist.New([]byte(content))
	}

	fsEvents, err := m.host.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	m.reconcile(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.handleProjectEvents(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.handleDiskEvents(runCtx, fsEvents)
	}()

	return nil
}

// Unlink stops both consuming goroutines and clears mirror-local state.
func (m *Mirror) Unlink() {
	m.mu.Lock()
	if !m.linked {
		m.mu.Unlock()
		return
	}
	m.linked = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.coalescer.Wait()

	m.mu.Lock()
	m.echoes.Clear()
	m.chain.Clear()
	m.contentHash = make(map[string]string)
	m.mu.Unlock()
}

func (m *Mirror) handleProjectEvents(ctx context.Context) {
	events := m.proj.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.applyProjectEvent(ctx, ev)
		}
	}
}

func (m *Mirror) handleDiskEvents(ctx context.Context, events <-chan ports.FSEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.applyDiskEvent(ctx, ev)
		}
	}
}

func (m *Mirror) recordHash(path string, content []byte) string {
	sum := md5.Sum(content)
	h := hex.EncodeToString(sum[:])
	m.mu.Lock()
	m.contentHash[path] = h
	m.mu.Unlock()
	return h
}

func (m *Mirror) logSignal(err error) {
	if err != nil {
		slog.Warn("mirror: operation failed", "error", err)
		m.signal.Recoverable(err)
	}
}
