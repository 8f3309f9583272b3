// Package registry maps project names to root directories. The mapping
// lives in a projects.yaml next to the user config; every subsystem
// that needs a project root resolves it here.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the registry file kept in the hive config directory.
const FileName = "projects.yaml"

// Project is one registered project.
type Project struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// registryFile is the on-disk shape.
type registryFile struct {
	Projects []Project `yaml:"projects"`
}

// Registry is the persistent name -> root directory mapping.
type Registry struct {
	path string

	mu       sync.RWMutex
	projects map[string]Project
}

// Open loads (or initializes) the registry at path.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:     path,
		projects: make(map[string]Project),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	for _, p := range file.Projects {
		r.projects[p.Name] = p
	}
	return r, nil
}

// Add registers a project. The path must be an existing directory.
func (r *Registry) Add(name, path string) error {
	if name == "" {
		return fmt.Errorf("project name is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("project path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path %s is not a directory", abs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects[name] = Project{Name: name, Path: abs}
	return r.saveLocked()
}

// Remove unregisters a project. The project directory is untouched.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[name]; !ok {
		return fmt.Errorf("no project named %q", name)
	}
	delete(r.projects, name)
	return r.saveLocked()
}

// Lookup resolves a project by name.
func (r *Registry) Lookup(name string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[name]
	if !ok {
		return Project{}, fmt.Errorf("no project named %q; register it first", name)
	}
	return p, nil
}

// List returns every registered project sorted by name.
func (r *Registry) List() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// saveLocked writes the registry file. Caller holds the write lock.
func (r *Registry) saveLocked() error {
	file := registryFile{}
	for _, p := range r.projects {
		file.Projects = append(file.Projects, p)
	}
	sort.Slice(file.Projects, func(i, j int) bool { return file.Projects[i].Name < file.Projects[j].Name })

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
