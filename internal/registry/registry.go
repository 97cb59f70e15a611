// Package registry implements C3, the Plugin Registry of spec.md §4.4:
// manifest discovery, parameter validation, and per-plugin dependency/env
// materialization.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"pluginsched/internal/errs"
)

const manifestFile = "plugin.json"

// Entry is everything the registry records about one discovered plugin,
// spec.md §4.4.
type Entry struct {
	Name        string
	Dir         string
	Manifest    Manifest
	FileHashes  map[string]uint64
	DepEnv      *DependencyEnv
	EnvFilePath string
}

// Registry is C3's operation set.
type Registry interface {
	Scan() error
	Get(name string) (Entry, bool)
	List() []Entry
	Reload(name string) error
	DependencyEnvFor(name string) (*DependencyEnv, error)
	EnvLayersFor(name string) (map[string]string, error)
}

type fsRegistry struct {
	pluginsRoot  string
	globalEnv    string
	depsManager  *depManager
	log          zerolog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// New constructs a registry rooted at pluginsRoot, with per-plugin
// dependency environments materialized under envsRoot.
func New(pluginsRoot, envsRoot string, log zerolog.Logger) Registry {
	return &fsRegistry{
		pluginsRoot: pluginsRoot,
		globalEnv:   filepath.Join(pluginsRoot, ".env"),
		depsManager: newDepManager(envsRoot, log),
		log:         log,
		entries:     map[string]Entry{},
	}
}

// Scan walks the plugins root once, grounded on
// original_source/plugin_manager.py's _scan_plugins: for every subdirectory
// carrying a plugin.json, load its metadata; directories without a
// manifest are skipped, and a bad manifest in one plugin never aborts the
// scan of the others.
func (r *fsRegistry) Scan() error {
	dirEntries, err := os.ReadDir(r.pluginsRoot)
	if err != nil {
		return fmt.Errorf("scan plugins root %s: %w", r.pluginsRoot, err)
	}

	found := map[string]Entry{}
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		pluginDir := filepath.Join(r.pluginsRoot, de.Name())
		manifestPath := filepath.Join(pluginDir, manifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		entry, err := r.loadEntry(pluginDir)
		if err != nil {
			r.log.Error().Err(err).Str("plugin_dir", pluginDir).Msg("failed to load plugin manifest")
			continue
		}
		found[entry.Name] = entry
	}

	r.mu.Lock()
	r.entries = found
	r.mu.Unlock()

	r.log.Info().Int("count", len(found)).Msg("plugin registry scan complete")
	return nil
}

func (r *fsRegistry) loadEntry(pluginDir string) (Entry, error) {
	manifestPath := filepath.Join(pluginDir, manifestFile)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: read manifest: %v", errs.ErrManifestInvalid, err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Entry{}, fmt.Errorf("%w: parse manifest: %v", errs.ErrManifestInvalid, err)
	}
	if m.Name == "" {
		return Entry{}, fmt.Errorf("%w: manifest missing name in %s", errs.ErrManifestInvalid, pluginDir)
	}

	hashes, err := hashPluginFiles(pluginDir)
	if err != nil {
		return Entry{}, fmt.Errorf("hash plugin files for %s: %w", m.Name, err)
	}

	return Entry{
		Name:        m.Name,
		Dir:         pluginDir,
		Manifest:    m,
		FileHashes:  hashes,
		EnvFilePath: filepath.Join(pluginDir, ".env"),
	}, nil
}

// hashPluginFiles hashes every *.py and *.json file in a plugin directory.
// The per-plugin .env file is not hashed, and the hot loader does not read
// these hashes: it marks a plugin dirty from file events alone.
func hashPluginFiles(pluginDir string) (map[string]uint64, error) {
	hashes := map[string]uint64{}
	entries, err := os.ReadDir(pluginDir)
	if err != nil {
		return nil, err
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := filepath.Ext(name)
		if ext != ".py" && ext != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(pluginDir, name))
		if err != nil {
			return nil, err
		}
		if ext == ".json" {
			hashes[name] = canonicalHashJSON(raw)
		} else {
			hashes[name] = hashBytes(raw)
		}
	}
	return hashes, nil
}

func (r *fsRegistry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func (r *fsRegistry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Reload drops cached state for one plugin and re-reads it from disk,
// spec.md §4.5's "drops all cached module state ... re-reads its manifest,
// recomputes file hashes".
func (r *fsRegistry) Reload(name string) error {
	r.mu.RLock()
	existing, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrPluginNotAvailable, name)
	}

	entry, err := r.loadEntry(existing.Dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[name] = entry
	r.mu.Unlock()
	return nil
}

func (r *fsRegistry) DependencyEnvFor(name string) (*DependencyEnv, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrPluginNotAvailable, name)
	}

	env, err := r.depsManager.materialize(name, entry.Manifest.Dependencies)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	entry.DepEnv = env
	r.entries[name] = entry
	r.mu.Unlock()

	return env, nil
}

func (r *fsRegistry) EnvLayersFor(name string) (map[string]string, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrPluginNotAvailable, name)
	}
	return LoadEnvLayers(r.globalEnv, entry.EnvFilePath)
}
