package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNameAndParamsSplitsNameFromFlags(t *testing.T) {
	name, params, err := parseNameAndParams([]string{"my_plugin", "--count=3", "--label=hello", "--enabled=true"})
	require.NoError(t, err)
	assert.Equal(t, "my_plugin", name)
	assert.Equal(t, float64(3), params["count"])
	assert.Equal(t, "hello", params["label"])
	assert.Equal(t, true, params["enabled"])
}

func TestParseNameAndParamsWithNoParams(t *testing.T) {
	name, params, err := parseNameAndParams([]string{"my_plugin"})
	require.NoError(t, err)
	assert.Equal(t, "my_plugin", name)
	assert.Empty(t, params)
}

func TestParseNameAndParamsRejectsMissingName(t *testing.T) {
	_, _, err := parseNameAndParams(nil)
	assert.Error(t, err)
}

func TestParseNameAndParamsRejectsNonFlagTrailingArg(t *testing.T) {
	_, _, err := parseNameAndParams([]string{"my_plugin", "stray"})
	assert.Error(t, err)
}

func TestParseNameAndParamsRejectsMalformedFlag(t *testing.T) {
	_, _, err := parseNameAndParams([]string{"my_plugin", "--novalue"})
	assert.Error(t, err)
}

func TestDecodeParamValueFallsBackToRawString(t *testing.T) {
	assert.Equal(t, "not-json{", decodeParamValue("not-json{"))
}

func TestDecodeParamValueDecodesJSONObject(t *testing.T) {
	v := decodeParamValue(`{"a":1}`)
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
}
