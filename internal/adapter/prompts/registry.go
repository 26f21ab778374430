package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"groundrag/internal/domain"
)

//go:embed registry.yaml
var defaultRegistry []byte

// Prompt is one resolved version of a named system prompt.
type Prompt struct {
	Name        string
	Version     string
	Description string
	System      string
}

type file struct {
	Prompts map[string]entry `yaml:"prompts"`
}

// entry lists versions oldest to newest. Latest pins a version explicitly;
// without it the last listed version is the latest.
type entry struct {
	Description string    `yaml:"description"`
	Latest      string    `yaml:"latest"`
	Versions    []version `yaml:"versions"`
}

type version struct {
	Version string `yaml:"version"`
	System  string `yaml:"system"`
}

type Registry struct {
	entries map[string]entry
}

// Default returns the registry compiled into the binary.
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

// Load returns the built-in registry with the prompts from path layered on
// top. A prompt defined in the file replaces the built-in prompt of the same
// name entirely. An empty path yields the built-in registry.
func Load(path string) (*Registry, error) {
	reg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: prompt registry %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read prompt registry: %w", err)
	}

	overlay, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, e := range overlay.entries {
		reg.entries[name] = e
	}
	return reg, nil
}

// Parse decodes and validates registry YAML.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prompt registry: %w", err)
	}
	if f.Prompts == nil {
		f.Prompts = map[string]entry{}
	}

	for name, e := range f.Prompts {
		if len(e.Versions) == 0 {
			return nil, domain.Validationf("prompt %q has no versions", name)
		}
		seen := make(map[string]bool, len(e.Versions))
		for _, v := range e.Versions {
			if v.Version == "" {
				return nil, domain.Validationf("prompt %q has a version without a name", name)
			}
			if seen[v.Version] {
				return nil, domain.Validationf("prompt %q lists version %q twice", name, v.Version)
			}
			if strings.TrimSpace(v.System) == "" {
				return nil, domain.Validationf("prompt %q version %q has an empty system text", name, v.Version)
			}
			seen[v.Version] = true
		}
		if e.Latest != "" && !seen[e.Latest] {
			return nil, domain.Validationf("prompt %q pins latest to unknown version %q", name, e.Latest)
		}
	}

	return &Registry{entries: f.Prompts}, nil
}

// Get resolves name at version. An empty version means the latest.
func (r *Registry) Get(name, ver string) (Prompt, error) {
	e, ok := r.entries[name]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
	}
	if ver == "" {
		ver = latestOf(e)
	}
	for _, v := range e.Versions {
		if v.Version == ver {
			return Prompt{
				Name:        name,
				Version:     v.Version,
				Description: e.Description,
				System:      strings.TrimSpace(v.System),
			}, nil
		}
	}
	return Prompt{}, fmt.Errorf("%w: prompt %q version %q", domain.ErrNotFound, name, ver)
}

func (r *Registry) Latest(name string) (Prompt, error) {
	return r.Get(name, "")
}

// Versions lists the versions of name, oldest first.
func (r *Registry) Versions(name string) ([]string, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
	}
	out := make([]string, len(e.Versions))
	for i, v := range e.Versions {
		out[i] = v.Version
	}
	return out, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseRef splits "name@version". The version part is optional.
func ParseRef(ref string) (name, ver string) {
	name, ver, _ = strings.Cut(ref, "@")
	return name, ver
}

func latestOf(e entry) string {
	if e.Latest != "" {
		return e.Latest
	}
	return e.Versions[len(e.Versions)-1].Version
}
