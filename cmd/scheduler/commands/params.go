package commands

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseNameAndParams splits a command's positional args into the leading
// plugin/task name and a trailing run of --key=value pairs, the
// `<name> [--k=v …]` shape spec.md §6 gives test-plugin and trigger.
// Each value is first tried as JSON (so --count=3 and --enabled=true decode
// as numbers/booleans) and falls back to a raw string otherwise.
func parseNameAndParams(args []string) (string, map[string]interface{}, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing required <name> argument")
	}
	name := args[0]
	params := map[string]interface{}{}
	for _, raw := range args[1:] {
		if !strings.HasPrefix(raw, "--") {
			return "", nil, fmt.Errorf("unexpected argument %q, want --key=value", raw)
		}
		kv := strings.SplitN(strings.TrimPrefix(raw, "--"), "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return "", nil, fmt.Errorf("malformed parameter %q, want --key=value", raw)
		}
		params[kv[0]] = decodeParamValue(kv[1])
	}
	return name, params, nil
}

func decodeParamValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
