package invoker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pluginsched/internal/registry"
)

type fakeDirty struct {
	dirty map[string]bool
}

func (f *fakeDirty) IsDirty(name string) bool { return f.dirty[name] }
func (f *fakeDirty) ClearDirty(name string)   { delete(f.dirty, name) }

// fakeRuntime writes a tiny shell script that ignores its arguments and
// echoes a fixed JSON result, standing in for a real interpreter so the
// test exercises the subprocess plumbing without depending on python3
// being installed.
func fakeRuntime(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakeruntime.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func setupPlugin(t *testing.T, manifest registry.Manifest) (registry.Registry, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, manifest.Name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("def run():\n    pass\n"), 0o644))

	reg := registry.New(root, t.TempDir(), zerolog.Nop())
	require.NoError(t, reg.Scan())
	return reg, dir
}

func TestExecuteSuccessPath(t *testing.T) {
	reg, _ := setupPlugin(t, registry.Manifest{
		Name:       "echo",
		EntryPoint: "main.run",
		Enabled:    true,
		Parameters: map[string]registry.ParameterSpec{
			"message": {Type: registry.TypeString, Required: true},
		},
	})

	runtime := fakeRuntime(t, `echo '{"status":"success","result":"ok"}'`)
	inv := New(reg, &fakeDirty{dirty: map[string]bool{}}, runtime, zerolog.Nop())

	result, err := inv.Execute(context.Background(), "echo", map[string]interface{}{"message": "hi"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "ok", result.Result)
}

func TestExecuteUnknownPluginFails(t *testing.T) {
	reg, _ := setupPlugin(t, registry.Manifest{Name: "echo", Enabled: true})
	inv := New(reg, &fakeDirty{dirty: map[string]bool{}}, "sh", zerolog.Nop())

	_, err := inv.Execute(context.Background(), "missing", nil, time.Second)
	assert.Error(t, err)
}

func TestExecuteDisabledPluginFails(t *testing.T) {
	reg, _ := setupPlugin(t, registry.Manifest{Name: "echo", Enabled: false})
	inv := New(reg, &fakeDirty{dirty: map[string]bool{}}, "sh", zerolog.Nop())

	_, err := inv.Execute(context.Background(), "echo", nil, time.Second)
	assert.Error(t, err)
}

func TestExecuteInvalidParametersFails(t *testing.T) {
	reg, _ := setupPlugin(t, registry.Manifest{
		Name:    "echo",
		Enabled: true,
		Parameters: map[string]registry.ParameterSpec{
			"message": {Type: registry.TypeString, Required: true},
		},
	})
	inv := New(reg, &fakeDirty{dirty: map[string]bool{}}, "sh", zerolog.Nop())

	_, err := inv.Execute(context.Background(), "echo", map[string]interface{}{}, time.Second)
	assert.Error(t, err)
}

func TestExecuteClearsDirtyAfterReload(t *testing.T) {
	reg, _ := setupPlugin(t, registry.Manifest{Name: "echo", EntryPoint: "main.run", Enabled: true})
	runtime := fakeRuntime(t, `echo '{"status":"success","result":"ok"}'`)
	dirty := &fakeDirty{dirty: map[string]bool{"echo": true}}
	inv := New(reg, dirty, runtime, zerolog.Nop())

	_, err := inv.Execute(context.Background(), "echo", map[string]interface{}{}, time.Second)
	require.NoError(t, err)
	assert.False(t, dirty.dirty["echo"])
}

func TestExecuteTimeout(t *testing.T) {
	reg, _ := setupPlugin(t, registry.Manifest{Name: "echo", EntryPoint: "main.run", Enabled: true})
	runtime := fakeRuntime(t, `sleep 2`)
	inv := New(reg, &fakeDirty{dirty: map[string]bool{}}, runtime, zerolog.Nop())

	result, err := inv.Execute(context.Background(), "echo", map[string]interface{}{}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
}
