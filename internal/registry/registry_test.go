package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlugin(t *testing.T, root, name string, manifest Manifest) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("def run():\n    pass\n"), 0o644))
	return dir
}

func TestScanDiscoversPluginsWithManifests(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "echo", Manifest{
		Name:       "echo",
		EntryPoint: "main.run",
		Enabled:    true,
		Parameters: map[string]ParameterSpec{
			"message": {Type: TypeString, Required: true},
		},
	})
	// a directory with no manifest must be skipped, not error the scan.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-plugin"), 0o755))

	reg := New(root, t.TempDir(), zerolog.Nop())
	require.NoError(t, reg.Scan())

	entries := reg.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "echo", entries[0].Name)
	assert.Contains(t, entries[0].FileHashes, "plugin.json")
	assert.Contains(t, entries[0].FileHashes, "main.py")
}

func TestScanSkipsInvalidManifestWithoutFailingOthers(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "good", Manifest{Name: "good", Enabled: true})

	badDir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "plugin.json"), []byte("{not json"), 0o644))

	reg := New(root, t.TempDir(), zerolog.Nop())
	require.NoError(t, reg.Scan())

	entries := reg.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Name)
}

func TestReloadPicksUpChangedManifest(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "echo", Manifest{Name: "echo", Description: "v1", Enabled: true})

	reg := New(root, t.TempDir(), zerolog.Nop())
	require.NoError(t, reg.Scan())

	updated := Manifest{Name: "echo", Description: "v2", Enabled: true}
	raw, err := json.Marshal(updated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), raw, 0o644))

	require.NoError(t, reg.Reload("echo"))

	entry, ok := reg.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "v2", entry.Manifest.Description)
}

func TestReloadUnknownPluginFails(t *testing.T) {
	reg := New(t.TempDir(), t.TempDir(), zerolog.Nop())
	require.NoError(t, reg.Scan())
	err := reg.Reload("nope")
	assert.Error(t, err)
}

func TestValidateParametersAppliesDefaultsAndRejectsMissingRequired(t *testing.T) {
	m := Manifest{
		Name: "echo",
		Parameters: map[string]ParameterSpec{
			"message": {Type: TypeString, Required: true},
			"retries": {Type: TypeInteger, Default: float64(3)},
		},
	}

	merged, err := ValidateParameters(m, map[string]interface{}{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", merged["message"])
	assert.Equal(t, float64(3), merged["retries"])

	_, err = ValidateParameters(m, map[string]interface{}{})
	assert.Error(t, err)
}

func TestValidateParametersPassesUnknownParamsThrough(t *testing.T) {
	m := Manifest{
		Name: "echo",
		Parameters: map[string]ParameterSpec{
			"message": {Type: TypeString},
		},
	}
	merged, err := ValidateParameters(m, map[string]interface{}{"message": "hi", "extra": "keep-me"})
	require.NoError(t, err)
	assert.Equal(t, "keep-me", merged["extra"])
}

func TestEnvLayersOverridesGlobalWithPerPlugin(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "echo", Manifest{Name: "echo", Enabled: true})

	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("A=global\nB=global\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "echo", ".env"), []byte("B=local\n"), 0o644))

	reg := New(root, t.TempDir(), zerolog.Nop())
	require.NoError(t, reg.Scan())

	layers, err := reg.EnvLayersFor("echo")
	require.NoError(t, err)
	assert.Equal(t, "global", layers["A"])
	assert.Equal(t, "local", layers["B"])
}
