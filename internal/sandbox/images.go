package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

var manifests = []struct {
	file string
	kind ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extKinds = map[string]ProjectType{
	".go":  ProjectTypeGo,
	".ts":  ProjectTypeNode,
	".tsx": ProjectTypeNode,
	".js":  ProjectTypeNode,
	".jsx": ProjectTypeNode,
	".py":  ProjectTypePython,
	".rs":  ProjectTypeRust,
}

// DetectProjectType checks for a manifest first, then falls back to the
// most common source extension in the root directory.
func DetectProjectType(repoRoot string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(repoRoot, m.file)); err == nil {
			return m.kind
		}
	}

	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return ProjectTypeUnknown
	}
	counts := map[ProjectType]int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if kind, ok := extKinds[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			counts[kind]++
		}
	}

	detected, best := ProjectTypeUnknown, 0
	for _, kind := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[kind] > best {
			detected, best = kind, counts[kind]
		}
	}
	return detected
}

// GetDockerImage returns the image for a project type unless config
// overrides it.
func GetDockerImage(projectType ProjectType, config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}
	switch projectType {
	case ProjectTypeGo:
		return "golang:alpine"
	case ProjectTypeNode:
		return "node:alpine"
	case ProjectTypePython:
		return "python:alpine"
	case ProjectTypeRust:
		return "rust:alpine"
	default:
		return "alpine:latest"
	}
}
