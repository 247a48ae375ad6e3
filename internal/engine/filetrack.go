package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	readRedundancyWindow    = 30 * time.Second
	listingRedundancyWindow = 60 * time.Second
	maxRedundantOps         = 2
)

// FileOpKind classifies a tool call for the file tracker.
type FileOpKind int

const (
	FileOpNone FileOpKind = iota
	FileOpRead
	FileOpList
	FileOpCreate
)

// ClassifyFileOp maps a tool call onto a file operation and its target path.
func ClassifyFileOp(tool string, args map[string]any) (FileOpKind, string) {
	name := strings.ToLower(tool)
	p := firstString(args, "path", "file_path", "filePath", "filename", "directory", "dir")
	switch {
	case strings.HasPrefix(name, "read") || name == "view_file" || name == "cat_file":
		if p == "" {
			return FileOpNone, ""
		}
		return FileOpRead, p
	case strings.HasPrefix(name, "list") || name == "ls":
		if p == "" {
			p = "."
		}
		return FileOpList, p
	case strings.HasPrefix(name, "write") || strings.HasPrefix(name, "create") || strings.Contains(name, "generate"):
		if p == "" {
			return FileOpNone, ""
		}
		return FileOpCreate, p
	}
	return FileOpNone, ""
}

type opRecord struct {
	count  int
	last   time.Time
	result string
}

// FileTracker suppresses redundant reads and listings, detects duplicate file
// creation and accumulates what the task has learned about the filesystem.
type FileTracker struct {
	reads    map[string]*opRecord
	listings map[string]*opRecord
	created  map[string]string // normalized stem -> concrete path
	recent   []string          // created paths, oldest first

	knownRead   map[string]bool
	knownListed map[string]bool

	now func() time.Time
}

// NewFileTracker returns an empty tracker.
func NewFileTracker() *FileTracker {
	f := &FileTracker{now: time.Now}
	f.Reset()
	return f
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "."
	}
	return filepath.Clean(p)
}

// CheckRead reports whether reading path again is redundant.
func (f *FileTracker) CheckRead(path string) (bool, string) {
	rec, ok := f.reads[normalizePath(path)]
	if !ok || f.now().Sub(rec.last) >= readRedundancyWindow || rec.count < maxRedundantOps {
		return false, ""
	}
	return true, fmt.Sprintf("%s was already read %d times in the last %s; use the content you already have", path, rec.count, readRedundancyWindow)
}

// CheckListing reports whether listing dir again is redundant and returns
// the cached listing when it is.
func (f *FileTracker) CheckListing(dir string) (bool, string) {
	rec, ok := f.listings[normalizePath(dir)]
	if !ok || f.now().Sub(rec.last) >= listingRedundancyWindow || rec.count < maxRedundantOps {
		return false, ""
	}
	return true, rec.result
}

func (f *FileTracker) bump(m map[string]*opRecord, key string, window time.Duration, result string) {
	now := f.now()
	rec, ok := m[key]
	if !ok || now.Sub(rec.last) >= window {
		rec = &opRecord{}
		m[key] = rec
	}
	rec.count++
	rec.last = now
	rec.result = result
}

// RecordRead registers a settled read.
func (f *FileTracker) RecordRead(path string) {
	key := normalizePath(path)
	f.bump(f.reads, key, readRedundancyWindow, "")
	f.knownRead[key] = true
}

// RecordListing registers a settled listing and caches its result.
func (f *FileTracker) RecordListing(dir, result string) {
	key := normalizePath(dir)
	f.bump(f.listings, key, listingRedundancyWindow, result)
	f.knownListed[key] = true
}

// RecordCreate registers a created file. When a file with the same
// normalized name already exists at another path, the returned warning
// names it.
func (f *FileTracker) RecordCreate(path string) string {
	p := normalizePath(path)
	stem := normalizeFileStem(p)
	var warning string
	if prev, ok := f.created[stem]; ok && prev != p {
		warning = fmt.Sprintf("a similar file was already created at %s; update it instead of creating %s", prev, p)
	}
	f.created[stem] = p
	for i, r := range f.recent {
		if r == p {
			f.recent = append(f.recent[:i], f.recent[i+1:]...)
			break
		}
	}
	f.recent = append(f.recent, p)
	return warning
}

// MostRecentCreated returns the last created path, or "".
func (f *FileTracker) MostRecentCreated() string {
	if len(f.recent) == 0 {
		return ""
	}
	return f.recent[len(f.recent)-1]
}

// KnowledgeSummary lists the files read and created and the directories
// listed so far in the task.
func (f *FileTracker) KnowledgeSummary() string {
	var sb strings.Builder
	write := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		sort.Strings(items)
		fmt.Fprintf(&sb, "%s: %s\n", label, strings.Join(items, ", "))
	}
	write("Files read", keys(f.knownRead))
	write("Files created", append([]string(nil), f.recent...))
	write("Directories listed", keys(f.knownListed))
	return strings.TrimSpace(sb.String())
}

// ResetStep clears the redundancy windows; knowledge survives.
func (f *FileTracker) ResetStep() {
	f.reads = make(map[string]*opRecord)
	f.listings = make(map[string]*opRecord)
}

// Reset clears all state.
func (f *FileTracker) Reset() {
	f.ResetStep()
	f.created = make(map[string]string)
	f.recent = nil
	f.knownRead = make(map[string]bool)
	f.knownListed = make(map[string]bool)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
