package registry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"
)

// DependencyEnv is a materialized, isolated package root for one plugin,
// the Go-native analogue of the original's per-plugin virtualenv
// (original_source plugin_manager.py's _create_virtual_env).
type DependencyEnv struct {
	PluginName string
	Root       string
	Ready      bool
}

// depManager lazily materializes one DependencyEnv per plugin, standing in
// for plugin_manager.py's self.virtual_envs cache. It keeps no in-memory
// cache: a later call reuses the plugin's root directory if it already
// exists on disk.
type depManager struct {
	envsRoot string
	log      zerolog.Logger
}

func newDepManager(envsRoot string, log zerolog.Logger) *depManager {
	return &depManager{envsRoot: envsRoot, log: log}
}

// materialize builds (or reuses) the isolated package root for a plugin.
// Dependency strings are installed via pip into a directory-scoped target,
// which keeps each plugin's third-party packages from leaking into any
// other plugin's import path — the language-neutral reduction spec.md §9
// allows ("pinning a per-plugin configuration bundle").
func (m *depManager) materialize(pluginName string, dependencies []string) (*DependencyEnv, error) {
	root := filepath.Join(m.envsRoot, pluginName)
	env := &DependencyEnv{PluginName: pluginName, Root: root}

	if info, err := os.Stat(root); err == nil && info.IsDir() {
		env.Ready = true
		return env, nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("materialize dependency env for %s: %w", pluginName, err)
	}

	if len(dependencies) == 0 {
		env.Ready = true
		return env, nil
	}

	m.log.Info().Str("plugin", pluginName).Strs("dependencies", dependencies).Msg("materializing plugin dependency environment")

	for _, dep := range dependencies {
		cmd := exec.Command("pip", "install", "--target", root, dep)
		cmd.Env = os.Environ()
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, fmt.Errorf("install dependency %q for plugin %s: %w: %s", dep, pluginName, err, out)
		}
	}

	env.Ready = true
	return env, nil
}

// PythonPath returns the PYTHONPATH entry a subprocess invocation of this
// plugin should be launched with, rooting import resolution at the
// plugin's isolated dependency root.
func (e *DependencyEnv) PythonPath() string {
	return e.Root
}
