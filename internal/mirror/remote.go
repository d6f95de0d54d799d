package mirror

import (
	"context"

	"github.com/scenehub/projectsync/internal/opcodec"
	"github.com/scenehub/projectsync/internal/project"
)

// applyProjectEvent mirrors one Project-originated change onto disk (or
// into an already-open editor document), registering an echo so the
// resulting FS event is not fed back into the Project.
func (m *Mirror) applyProjectEvent(ctx context.Context, ev project.Event) {
	switch ev.Kind {
	case project.EventFileCreate:
		m.applyCreate(ctx, ev)
	case project.EventFileUpdate:
		m.applyUpdate(ctx, ev)
	case project.EventFileDelete:
		m.applyDelete(ctx, ev)
	case project.EventFileRename:
		m.applyRename(ctx, ev)
	case project.EventFileSave:
		// Server-side persist acknowledgement only; nothing to mirror.
	}
}

func (m *Mirror) applyCreate(ctx context.Context, ev project.Event) {
	m.echoes.Add(ev.Path)
	err := m.chain.Atomic(ctx, ev.Path, func() error {
		if ev.IsFolder {
			return m.host.MkdirAll(ev.Path)
		}
		m.recordHash(ev.Path, []byte(ev.NewContent))
		return m.host.WriteFile(ev.Path, []byte(ev.NewContent))
	})
	m.logSignal(err)
}

func (m *Mirror) applyUpdate(ctx context.Context, ev project.Event) {
	m.echoes.Add(ev.Path)
	err := m.chain.Atomic(ctx, ev.Path, func() error {
		if doc, ok := m.host.FindOpenDocument(ev.Path); ok && !doc.IsDirty() {
			edits := opcodec.SharedbToEditor(ev.TextOps)
			if len(edits) > 0 {
				if err := m.host.ApplyEdit(ctx, doc, edits); err != nil {
					return err
				}
			}
			m.recordHash(ev.Path, []byte(ev.NewContent))
			return m.host.SaveDocument(ctx, doc)
		}
		m.recordHash(ev.Path, []byte(ev.NewContent))
		return m.host.WriteFile(ev.Path, []byte(ev.NewContent))
	})
	m.logSignal(err)
}

func (m *Mirror) applyDelete(ctx context.Context, ev project.Event) {
	m.echoes.Add(ev.Path)
	err := m.chain.Atomic(ctx, ev.Path, func() error {
		m.mu.Lock()
		delete(m.contentHash, ev.Path)
		m.mu.Unlock()
		return m.host.RemoveAll(ev.Path)
	})
	m.logSignal(err)
}

func (m *Mirror) applyRename(ctx context.Context, ev project.Event) {
	m.echoes.Add(ev.FromPath)
	m.echoes.Add(ev.ToPath)
	err := m.chain.AtomicMulti(ctx, []string{ev.FromPath, ev.ToPath}, func() error {
		m.mu.Lock()
		if h, ok := m.contentHash[ev.FromPath]; ok {
			m.contentHash[ev.ToPath] = h
			delete(m.contentHash, ev.FromPath)
		}
		m.mu.Unlock()
		return m.host.Rename(ev.FromPath, ev.ToPath)
	})
	m.logSignal(err)
}
