// Package ignorelist wraps gitignore-style pattern matching
// (sabhiram/go-gitignore) for the mirror's .pcignore handling: compile
// a fixed set of default rules plus whatever custom rules the caller
// supplies. The ignore file lives in the project as a normal tracked
// asset, so it is loaded from in-memory asset content handed in by the
// caller rather than read off local disk.
package ignorelist

import (
	"bufio"
	"log/slog"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultLines are always-ignored patterns, independent of the
// project's own .pcignore content.
var defaultLines = []string{
	".pcignore",
	".git",
	".DS_Store",
	"Thumbs.db",
	"*.tmp",
	"*.swp",
	"node_modules/",
}

// List is a compiled ignore predicate for one linked project.
type List struct {
	ignore *gitignore.GitIgnore
}

// New compiles a List from the project's .pcignore content (may be nil
// if the asset does not exist). The ignore file itself and the root are
// always processable regardless of what it contains.
func New(pcignoreContent []byte) *List {
	lines := append([]string(nil), defaultLines...)
	if pcignoreContent != nil {
		custom := parseLines(pcignoreContent)
		lines = append(lines, custom...)
		slog.Debug("ignorelist: loaded .pcignore", "rules", len(custom))
	}
	return &List{ignore: gitignore.CompileIgnoreLines(lines...)}
}

// ShouldIgnore reports whether relPath (slash-joined, relative to the
// workspace root) should be skipped by DiskMirror's primitives and
// reconciliation pass. The ignore file itself and the project root are
// never ignored.
func (l *List) ShouldIgnore(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	if clean == "" || clean == ".pcignore" {
		return false
	}
	return l.ignore.MatchesPath(clean)
}

func parseLines(content []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
