// Package filesystem implements the read_file, list_files and write_file
// tools over a repository root.
package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem defines the filesystem operations the tools need, so tests
// can inject failures.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// OSFileSystem is the default implementation that uses the os package.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFileSystem) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

func (OSFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }

// resolve joins path onto repoRoot and rejects results that escape it.
func resolve(repoRoot, path string) (string, error) {
	root := filepath.Clean(repoRoot)
	full := filepath.Clean(filepath.Join(root, path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: %s is outside the repository root", path)
	}
	return full, nil
}

// describeFSError rewrites os errors into messages naming the user's path
// rather than the absolute one.
func describeFSError(path string, err error) string {
	switch {
	case os.IsNotExist(err):
		return fmt.Sprintf("file not found: %s does not exist", path)
	case os.IsPermission(err):
		return fmt.Sprintf("permission denied: '%s'", path)
	default:
		return err.Error()
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
