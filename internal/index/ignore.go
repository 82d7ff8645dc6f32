package index

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFile lists gitignore-style exclude patterns for a source directory.
const IgnoreFile = ".complyignore"

type ignorePattern struct {
	glob     string
	anchored bool // contains a slash, so it matches the full relative path
	dirOnly  bool
}

// Ignore matches paths relative to an ingest root against exclude patterns.
// Negations are not supported.
type Ignore struct {
	patterns []ignorePattern
}

// LoadIgnore reads root/.complyignore. A missing file yields an empty Ignore.
func LoadIgnore(root string) (*Ignore, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if os.IsNotExist(err) {
		return &Ignore{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIgnore(f)
}

// ParseIgnore reads one pattern per line, skipping blanks, comments and
// negations.
func ParseIgnore(r io.Reader) (*Ignore, error) {
	ig := &Ignore{}
	seen := map[string]bool{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		p := ignorePattern{}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		line = strings.TrimPrefix(line, "/")
		line = strings.TrimPrefix(line, "**/")
		if line == "" {
			continue
		}
		p.anchored = strings.Contains(line, "/")
		p.glob = line
		if _, err := path.Match(p.glob, "x"); err != nil {
			return nil, fmt.Errorf("%s line %d: invalid pattern %q: %w", IgnoreFile, n, line, err)
		}
		key := fmt.Sprintf("%s|%t", p.glob, p.dirOnly)
		if !seen[key] {
			seen[key] = true
			ig.patterns = append(ig.patterns, p)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ig, nil
}

// Len returns the number of patterns.
func (ig *Ignore) Len() int { return len(ig.patterns) }

// Match reports whether rel, a slash- or OS-separated path relative to the
// root, is excluded. Directories should be checked before descending so a
// match prunes the subtree.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	for _, p := range ig.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		target := base
		if p.anchored {
			target = rel
		}
		if ok, _ := path.Match(p.glob, target); ok {
			return true
		}
	}
	return false
}
