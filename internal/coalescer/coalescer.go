// Package coalescer batches raw disk-watcher events behind a single
// shared debounce timer, folds a delete+create pair sharing a parent
// folder or leaf name into a rename, and dispatches everything else
// concurrently except operations whose paths are related (one names an
// ancestor of the other), which wait for one another in arrival order.
// A drained batch is admitted in arrival order, so an operation queued
// behind one that is waiting on a related path also waits, even when
// its own path is unrelated.
package coalescer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Window is the shared debounce period: the first event queued after a
// drain arms one timer for the whole queue (not a per-path timer), and
// the queue drains this long after that event; later events join the
// pending batch without resetting the timer, so a delete+create pair
// produced by the same "save as" lands in one drain when both arrive
// within the window.
const Window = 10 * time.Millisecond

// Action discriminates a queued Op.
type Action int

const (
	ActionCreate Action = iota
	ActionChange
	ActionDelete
)

// Op is one raw disk event, queued for coalescing.
type Op struct {
	Action Action
	Path   string
}

// Handlers are the caller's reactions to a drained batch's operations,
// invoked concurrently by Coalescer subject to the related-path gate.
type Handlers struct {
	Create func(ctx context.Context, path string)
	Change func(ctx context.Context, path string)
	Delete func(ctx context.Context, path string)
	Rename func(ctx context.Context, from, to string)
}

// Coalescer is DiskMirror's disk-event batching, pairing, and
// dependency-ordered dispatch mechanism.
type Coalescer struct {
	mu       sync.Mutex
	queue    []Op
	timer    *time.Timer
	handlers Handlers
	gate     *depGate
	eg       *errgroup.Group
}

// New constructs a Coalescer invoking handlers for each drained op, at
// most concurrency dispatches in flight at once.
func New(handlers Handlers, concurrency int) *Coalescer {
	eg := &errgroup.Group{}
	eg.SetLimit(concurrency)
	return &Coalescer{handlers: handlers, gate: newDepGate(), eg: eg}
}

// Push enqueues a raw event, arming the shared timer if this is the
// first event queued since the last drain.
func (c *Coalescer) Push(ctx context.Context, ev Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, ev)
	if c.timer == nil {
		c.timer = time.AfterFunc(Window, func() { c.drain(ctx) })
	}
}

func (c *Coalescer) drain(ctx context.Context) {
	c.mu.Lock()
	batch := c.queue
	c.queue = nil
	c.timer = nil
	c.mu.Unlock()

	for _, item := range pairRenames(batch) {
		item := item
		keys := item.keys()
		c.gate.acquire(keys)
		c.eg.Go(func() error {
			defer c.gate.release(keys)
			item.dispatch(ctx, c.handlers)
			return nil
		})
	}
}

// Wait drops any not-yet-fired batch and blocks until every dispatched
// operation has returned, for DiskMirror's Unlink.
func (c *Coalescer) Wait() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.queue = nil
	c.mu.Unlock()
	_ = c.eg.Wait()
}

// batchItem is either a plain Op or a paired rename, ready for gated
// dispatch.
type batchItem struct {
	op     Op
	rename *renamePairing
}

type renamePairing struct {
	from, to string
}

func (b batchItem) keys() []string {
	if b.rename != nil {
		return []string{b.rename.from, b.rename.to}
	}
	return []string{b.op.Path}
}

func (b batchItem) dispatch(ctx context.Context, h Handlers) {
	if b.rename != nil {
		if h.Rename != nil {
			h.Rename(ctx, b.rename.from, b.rename.to)
		}
		return
	}
	switch b.op.Action {
	case ActionCreate:
		if h.Create != nil {
			h.Create(ctx, b.op.Path)
		}
	case ActionChange:
		if h.Change != nil {
			h.Change(ctx, b.op.Path)
		}
	case ActionDelete:
		if h.Delete != nil {
			h.Delete(ctx, b.op.Path)
		}
	}
}

// pairRenames walks consecutive entries, folding a delete immediately
// followed (or preceded) by a create sharing a common parent or the
// same leaf name into a single rename; everything else passes through
// as its own Op.
func pairRenames(batch []Op) []batchItem {
	var out []batchItem
	for i := 0; i < len(batch); i++ {
		if i+1 < len(batch) {
			if from, to, ok := renamePair(batch[i], batch[i+1]); ok {
				out = append(out, batchItem{rename: &renamePairing{from: from, to: to}})
				i++
				continue
			}
		}
		out = append(out, batchItem{op: batch[i]})
	}
	return out
}

func renamePair(a, b Op) (from, to string, ok bool) {
	var del, create Op
	switch {
	case a.Action == ActionDelete && b.Action == ActionCreate:
		del, create = a, b
	case a.Action == ActionCreate && b.Action == ActionDelete:
		del, create = b, a
	default:
		return "", "", false
	}
	if !sharesParentOrLeaf(del.Path, create.Path) {
		return "", "", false
	}
	return del.Path, create.Path, true
}

func sharesParentOrLeaf(a, b string) bool {
	return parentOf(a) == parentOf(b) || leafOf(a) == leafOf(b)
}

func parentOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return ""
}

func leafOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
