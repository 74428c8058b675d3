// Package fs enumerates file trees for the metadata-capture stage: a
// sequential directory walk with a skip-list for known noise directories.
// Inaccessible entries are counted, never fatal.
package fs

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FileMeta is the per-file metadata the walker yields.
type FileMeta struct {
	RelPath    string // relative to the walk root, forward slashes
	Name       string // lower-cased basename, "" when absent
	SizeBytes  int64
	ModifiedAt time.Time
	CreatedAt  time.Time
	AccessedAt time.Time
	Extension  string // lower-cased, includes the dot
	Hidden     bool   // dotfile convention
}

// Walker performs a sequential walk of a directory tree.
type Walker struct {
	root    string
	skip    *SkipMatcher
	dirs    int64
	skipped int64
	errors  int64
}

// NewWalker creates a walker rooted at the given directory. skip may be nil
// for the default noise-directory list.
func NewWalker(root string, skip *SkipMatcher) *Walker {
	if skip == nil {
		skip = NewSkipMatcher(nil)
	}
	return &Walker{root: root, skip: skip}
}

// Dirs returns the number of directories entered, excluding the root.
func (w *Walker) Dirs() int64 { return w.dirs }

// SkippedDirs returns the number of directories pruned by the skip list.
func (w *Walker) SkippedDirs() int64 { return w.skipped }

// ErrorCount returns the number of entries that could not be read.
func (w *Walker) ErrorCount() int64 { return w.errors }

// Walk visits every accessible regular file under the root in directory
// order, calling fn for each. Directory read failures and per-file stat
// failures are counted and skipped. Walk stops early only on context
// cancellation or a non-nil error from fn.
func (w *Walker) Walk(ctx context.Context, fn func(meta *FileMeta) error) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable directory or vanished entry: count and move on.
			w.errors++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != w.root {
				if w.skip.Match(d.Name()) {
					w.skipped++
					return filepath.SkipDir
				}
				w.dirs++
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.errors++
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			w.errors++
			return nil
		}
		rel = filepath.ToSlash(rel)

		accessed, created := statTimes(info)
		base := filepath.Base(path)

		return fn(&FileMeta{
			RelPath:    rel,
			Name:       strings.ToLower(base),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
			CreatedAt:  created,
			AccessedAt: accessed,
			Extension:  strings.ToLower(filepath.Ext(base)),
			Hidden:     strings.HasPrefix(base, "."),
		})
	})
}
