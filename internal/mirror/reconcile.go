package mirror

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// reconcile materializes every path the Project already has placed that
// is missing from disk, folders first by ascending depth so a child's
// parent always exists before the child is created. Run once at Link,
// before the watcher goroutines start, so a pre-existing local copy
// isn't clobbered and a fresh workspace is fully populated.
func (m *Mirror) reconcile(ctx context.Context) {
	entries := m.proj.Snapshot()
	sort.Slice(entries, func(i, j int) bool {
		return strings.Count(entries[i].Path, "/") < strings.Count(entries[j].Path, "/")
	})

	var materialized int
	var bytesWritten int64
	for _, e := range entries {
		if m.ignore.ShouldIgnore(e.Path) {
			continue
		}
		if _, err := m.host.Stat(e.Path); err == nil {
			continue // already present locally
		}

		m.echoes.Add(e.Path)
		err := m.chain.Atomic(ctx, e.Path, func() error {
			if e.IsFolder {
				return m.host.MkdirAll(e.Path)
			}
			content, _ := m.proj.FileContent(e.Path)
			m.recordHash(e.Path, []byte(content))
			bytesWritten += int64(len(content))
			return m.host.WriteFile(e.Path, []byte(content))
		})
		m.logSignal(err)
		if err == nil {
			materialized++
		}
	}
	if materialized > 0 {
		slog.Info("mirror: reconciled", "files", materialized, "size", humanize.Bytes(uint64(bytesWritten)))
	}
}
