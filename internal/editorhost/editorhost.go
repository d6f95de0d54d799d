// Package editorhost provides an in-memory ports.EditorHost test double.
// The real collaborator is a host editor's own extension API (VS Code,
// JetBrains, …) — not a Go library, so there is no concrete production
// adapter here, only the fake used by internal/mirror's tests and the
// demo CLI.
package editorhost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scenehub/projectsync/internal/ports"
)

type node struct {
	isDir   bool
	content []byte
}

// Document is the in-memory EditorDocument implementation.
type Document struct {
	path  string
	text  string
	dirty bool
}

func (d *Document) Path() string  { return d.path }
func (d *Document) Text() string  { return d.text }
func (d *Document) IsDirty() bool { return d.dirty }

// Host is an in-memory ports.EditorHost: a flat path->node map plus a
// set of open documents and a watch channel callers feed by calling
// Emit, standing in for a real editor's file-change notifications.
type Host struct {
	mu    sync.Mutex
	files map[string]*node
	open  map[string]*Document

	watchCh chan ports.FSEvent
}

// New returns an empty Host, with only the root folder present.
func New() *Host {
	return &Host{
		files:   map[string]*node{"": {isDir: true}},
		open:    make(map[string]*Document),
		watchCh: make(chan ports.FSEvent, 256),
	}
}

// Emit pushes a synthetic FS event, as a real adapter's watcher would.
func (h *Host) Emit(ev ports.FSEvent) {
	select {
	case h.watchCh <- ev:
	default:
	}
}

func (h *Host) Watch(ctx context.Context) (<-chan ports.FSEvent, error) {
	return h.watchCh, nil
}

func (h *Host) Stat(path string) (ports.FileStat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.files[path]
	if !ok {
		return ports.FileStat{}, fmt.Errorf("editorhost: %q: no such file", path)
	}
	return ports.FileStat{IsDir: n.isDir, Size: int64(len(n.content))}, nil
}

func (h *Host) ReadFile(path string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.files[path]
	if !ok || n.isDir {
		return nil, fmt.Errorf("editorhost: %q: no such file", path)
	}
	out := make([]byte, len(n.content))
	copy(out, n.content)
	return out, nil
}

func (h *Host) WriteFile(path string, content []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := make([]byte, len(content))
	copy(buf, content)
	h.files[path] = &node{content: buf}
	return nil
}

func (h *Host) MkdirAll(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[path] = &node{isDir: true}
	return nil
}

func (h *Host) RemoveAll(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := path + "/"
	for p := range h.files {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(h.files, p)
		}
	}
	delete(h.open, path)
	return nil
}

func (h *Host) Rename(oldPath, newPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := oldPath + "/"
	moves := map[string]string{}
	for p := range h.files {
		if p == oldPath {
			moves[p] = newPath
		} else if strings.HasPrefix(p, prefix) {
			moves[p] = newPath + "/" + strings.TrimPrefix(p, prefix)
		}
	}
	for from, to := range moves {
		h.files[to] = h.files[from]
		delete(h.files, from)
	}
	if doc, ok := h.open[oldPath]; ok {
		doc.path = newPath
		h.open[newPath] = doc
		delete(h.open, oldPath)
	}
	return nil
}

func (h *Host) ReadDir(path string) ([]ports.DirEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prefix := path
	if prefix != "" {
		prefix += "/"
	}
	var out []ports.DirEntry
	seen := map[string]bool{}
	for p, n := range h.files {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx]
			if seen[rest] {
				continue
			}
			seen[rest] = true
			out = append(out, ports.DirEntry{Name: rest, IsDir: true})
			continue
		}
		seen[rest] = true
		out = append(out, ports.DirEntry{Name: rest, IsDir: n.isDir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (h *Host) OpenDocument(ctx context.Context, path string) (ports.EditorDocument, error) {
	content, err := h.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	doc := &Document{path: path, text: string(content)}
	h.open[path] = doc
	return doc, nil
}

func (h *Host) FindOpenDocument(path string) (ports.EditorDocument, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.open[path]
	return doc, ok
}

func (h *Host) ApplyEdit(ctx context.Context, doc ports.EditorDocument, edits []ports.TextEdit) error {
	d, ok := doc.(*Document)
	if !ok {
		return fmt.Errorf("editorhost: foreign document handle")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	text := d.text
	for _, e := range edits {
		if e.StartOffset < 0 || e.EndOffset > len(text) || e.StartOffset > e.EndOffset {
			return fmt.Errorf("editorhost: edit range out of bounds")
		}
		text = text[:e.StartOffset] + e.NewText + text[e.EndOffset:]
	}
	d.text = text
	d.dirty = true
	return nil
}

func (h *Host) SaveDocument(ctx context.Context, doc ports.EditorDocument) error {
	d, ok := doc.(*Document)
	if !ok {
		return fmt.Errorf("editorhost: foreign document handle")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[d.path] = &node{content: []byte(d.text)}
	d.dirty = false
	return nil
}
