package mirror

import (
	"context"
	stdpath "path"

	"github.com/scenehub/projectsync/internal/coalescer"
	"github.com/scenehub/projectsync/internal/ports"
)

// applyDiskEvent reacts to one raw FS event from the editor host's
// watcher, filtering ignored paths and self-caused echoes before handing
// it to the coalescer for debouncing, rename pairing against any other
// queued event, and dependency-ordered dispatch.
func (m *Mirror) applyDiskEvent(ctx context.Context, ev ports.FSEvent) {
	if m.ignore.ShouldIgnore(ev.Path) {
		return
	}
	if m.echoes.Consume(ev.Path) {
		return
	}

	var action coalescer.Action
	switch ev.Kind {
	case ports.FSCreate:
		action = coalescer.ActionCreate
	case ports.FSChange:
		action = coalescer.ActionChange
	case ports.FSDelete:
		action = coalescer.ActionDelete
	}
	m.coalescer.Push(ctx, coalescer.Op{Action: action, Path: ev.Path})
}

// dispatchCreate is the coalescer's Create handler: a folder create if
// the path now stats as a directory, otherwise a file create carrying
// the file's current content.
func (m *Mirror) dispatchCreate(ctx context.Context, path string) {
	stat, err := m.host.Stat(path)
	if err == nil && stat.IsDir {
		_, createErr := m.proj.Create(ctx, normalizeDir(stdpath.Dir(path)), stdpath.Base(path), true, nil)
		m.logSignal(createErr)
		return
	}

	content, err := m.host.ReadFile(path)
	if err != nil {
		m.logSignal(err)
		return
	}
	m.recordHash(path, content)

	parent := normalizeDir(stdpath.Dir(path))
	_, createErr := m.proj.Create(ctx, parent, stdpath.Base(path), false, content)
	m.logSignal(createErr)
}

// dispatchChange is the coalescer's Change handler.
func (m *Mirror) dispatchChange(ctx context.Context, path string) {
	content, err := m.host.ReadFile(path)
	if err != nil {
		m.logSignal(err)
		return
	}
	m.recordHash(path, content)
	if err := m.proj.Write(ctx, path, string(content)); err != nil {
		m.logSignal(err)
		return
	}
	m.logSignal(m.proj.Save(ctx, path))
}

// dispatchDelete is the coalescer's Delete handler: it reads the kind of
// whatever asset holds path when the dispatch fires and deletes it; a
// path reused by a different asset between the disk event and this
// dispatch is not detected.
func (m *Mirror) dispatchDelete(ctx context.Context, path string) {
	kind, ok := m.proj.Kind(path)
	if !ok {
		return
	}
	m.logSignal(m.proj.Delete(ctx, path, kind))
}

// dispatchRename is the coalescer's Rename handler, fired for a
// delete+create pair folded into a single move.
func (m *Mirror) dispatchRename(ctx context.Context, from, to string) {
	m.logSignal(m.proj.Rename(ctx, from, to))
}

// normalizeDir maps stdpath.Dir's "." (no parent) to the workspace root "".
func normalizeDir(dir string) string {
	if dir == "." {
		return ""
	}
	return dir
}
