package filesystem

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/toolresult"
)

const defaultListLimit = 1000

var defaultIgnorePatterns = []string{".git", "node_modules"}

type listOptions struct {
	recursive bool
	maxDepth  int
	limit     int
	ignore    []string
}

// listFilesImpl lists path relative to repoRoot. The repository's own
// .gitignore is honoured along with the requested patterns.
func listFilesImpl(fsys FileSystem, repoRoot, path string, opts listOptions) (string, error) {
	dirPath, err := resolve(repoRoot, path)
	if err != nil {
		return toolresult.Fail(err.Error(), map[string]any{"path": path})
	}
	root := filepath.Clean(repoRoot)
	if opts.limit <= 0 {
		opts.limit = defaultListLimit
	}

	patterns := append([]string{}, opts.ignore...)
	if data, err := fsys.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, strings.Split(string(data), "\n")...)
	}
	matcher := gitignore.CompileIgnoreLines(patterns...)

	shouldIgnore := func(rel string) bool {
		if rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
			return true
		}
		return matcher.MatchesPath(rel)
	}

	files := make([]string, 0)
	truncated := false

	if opts.recursive {
		err = fsys.WalkDir(dirPath, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if walkPath == dirPath {
				return nil
			}
			rel, err := filepath.Rel(root, walkPath)
			if err != nil {
				return nil
			}
			if shouldIgnore(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if opts.maxDepth >= 0 {
				fromStart, err := filepath.Rel(dirPath, walkPath)
				if err == nil && strings.Count(fromStart, string(filepath.Separator)) > opts.maxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if d.IsDir() {
				rel += "/"
			}
			files = append(files, rel)
			if len(files) >= opts.limit {
				truncated = true
				return filepath.SkipAll
			}
			return nil
		})
	} else {
		var entries []fs.DirEntry
		entries, err = fsys.ReadDir(dirPath)
		for _, entry := range entries {
			rel, relErr := filepath.Rel(root, filepath.Join(dirPath, entry.Name()))
			if relErr != nil || shouldIgnore(rel) {
				continue
			}
			if entry.IsDir() {
				rel += "/"
			}
			files = append(files, rel)
			if len(files) >= opts.limit {
				truncated = true
				break
			}
		}
	}
	if err != nil {
		return toolresult.Fail(describeFSError(path, err), map[string]any{"path": path})
	}

	return toolresult.OK(map[string]any{
		"path":      path,
		"files":     files,
		"recursive": opts.recursive,
		"truncated": truncated,
	})
}

// NewListFilesTool creates the list_files tool.
func NewListFilesTool(repoRoot string, fsys FileSystem) engine.Tool {
	return engine.Tool{
		Name:        "list_files",
		Description: "Lists files in the repository. Directories end with '/'. Honours .gitignore. Use this to discover files before reading them.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Subdirectory relative to the repository root (default: root)"},
			"recursive":{"type":"boolean","description":"List files recursively (default false)"},
			"max_depth":{"type":"integer","description":"Maximum depth for recursive listing (default unlimited)"},
			"limit":{"type":"integer","minimum":1,"description":"Maximum number of entries (default 1000)"},
			"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"Extra gitignore-style patterns to skip"}
		},"required":[]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = "."
			}
			recursive, _ := args["recursive"].(bool)
			opts := listOptions{
				recursive: recursive,
				maxDepth:  intArg(args, "max_depth", -1),
				limit:     intArg(args, "limit", defaultListLimit),
				ignore:    append([]string{}, defaultIgnorePatterns...),
			}
			if patterns, ok := args["ignore_patterns"].([]any); ok {
				for _, p := range patterns {
					if s, ok := p.(string); ok {
						opts.ignore = append(opts.ignore, s)
					}
				}
			}
			return listFilesImpl(fsys, repoRoot, path, opts)
		},
		Metadata: engine.ToolMetadata{
			Category: "filesystem",
			Tags:     []string{engine.TagIdempotent},
		},
	}
}
