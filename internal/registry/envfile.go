package registry

import (
	"bufio"
	"os"
	"strings"
)

// parseEnvFile reads a .env-style file (KEY=VALUE, '#'-comments, blank
// lines skipped, surrounding quotes stripped from values), grounded on the
// python-dotenv idiom original_source/config.py relies on. Returns an empty
// map and no error if the file does not exist — env files are optional at
// both layers per spec.md §4.4.
func parseEnvFile(path string) (map[string]string, error) {
	out := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		val = strings.Trim(val, `"'`)
		out[key] = val
	}
	return out, scanner.Err()
}

// LoadEnvLayers applies the global plugins-root env file and then the
// per-plugin env file, the second overriding the first, per spec.md §4.4.
func LoadEnvLayers(globalPath, pluginPath string) (map[string]string, error) {
	merged := map[string]string{}
	global, err := parseEnvFile(globalPath)
	if err != nil {
		return nil, err
	}
	for k, v := range global {
		merged[k] = v
	}
	local, err := parseEnvFile(pluginPath)
	if err != nil {
		return nil, err
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged, nil
}
