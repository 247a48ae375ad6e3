package prompts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// PromptRegistry holds the versions of each prompt, oldest first.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string][]*Prompt
}

var (
	defaultRegistry     *PromptRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry the built-in prompts register into.
func DefaultRegistry() *PromptRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPromptRegistry()
	})
	return defaultRegistry
}

// NewPromptRegistry creates an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string][]*Prompt)}
}

// Register adds p, replacing an earlier registration of the same version.
func (r *PromptRegistry) Register(p *Prompt) {
	if p == nil || p.ID == "" || p.Version == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.prompts[p.ID]
	for i, existing := range versions {
		if existing.Version == p.Version {
			versions[i] = p
			return
		}
	}
	versions = append(versions, p)
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i].Version, versions[j].Version) < 0
	})
	r.prompts[p.ID] = versions
}

// Get retrieves a specific version of a prompt.
func (r *PromptRegistry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	for _, p := range versions {
		if p.Version == version {
			return p, nil
		}
	}
	return nil, fmt.Errorf("prompt %s version %s not found", id, version)
}

// Latest returns the newest non-deprecated version of a prompt, or the
// newest version when every one is deprecated.
func (r *PromptRegistry) Latest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.prompts[id]
	if len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].Deprecated {
			return versions[i], nil
		}
	}
	return versions[len(versions)-1], nil
}

// Render builds the latest version of prompt id.
func (r *PromptRegistry) Render(id string, vars map[string]string, fragments ...string) (string, error) {
	p, err := r.Latest(id)
	if err != nil {
		return "", err
	}
	b := newPromptBuilder(p)
	for k, v := range vars {
		b.SetVariable(k, v)
	}
	for _, f := range fragments {
		b.AddFragment(f)
	}
	return b.Build()
}

// compareVersions orders dotted numeric versions ("1.10.0" > "1.9.2").
// Non-numeric segments compare as strings.
func compareVersions(a, b PromptVersion) int {
	as, bs := strings.Split(string(a), "."), strings.Split(string(b), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		xi, errX := strconv.Atoi(x)
		yi, errY := strconv.Atoi(y)
		switch {
		case errX == nil && errY == nil && xi != yi:
			if xi < yi {
				return -1
			}
			return 1
		case (errX != nil || errY != nil) && x != y:
			return strings.Compare(x, y)
		}
	}
	return 0
}
