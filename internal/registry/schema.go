package registry

import (
	"encoding/json"
	"fmt"

	"pluginsched/pkg/validation"
)

// jsonSchemaType maps a manifest ParameterType to the JSON Schema type
// keyword it compiles down to.
func jsonSchemaType(t ParameterType) string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	default:
		return "string"
	}
}

// compileParameterSchema turns a manifest's simpler per-field
// {type,required,default,description} shape into a JSON Schema document,
// so the same validation primitive the teacher uses for template params
// (pkg/validation.ValidateJSONWithSchema) also validates plugin invocation
// parameters, per SPEC_FULL.md §4.4.
func compileParameterSchema(params map[string]ParameterSpec) (string, error) {
	properties := map[string]interface{}{}
	var required []string

	for name, spec := range params {
		properties[name] = map[string]interface{}{
			"type":        jsonSchemaType(spec.Type),
			"description": spec.Description,
		}
		if spec.Required {
			required = append(required, name)
		}
	}

	schema := map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	b, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("compile parameter schema: %w", err)
	}
	return string(b), nil
}

// ValidateParameters applies manifest defaults for missing optional
// parameters and then validates the result against the compiled JSON
// Schema, per spec.md §4.4 ("default values are substituted when absent;
// unknown parameters are passed through unchanged").
func ValidateParameters(m Manifest, params map[string]interface{}) (map[string]interface{}, error) {
	merged := map[string]interface{}{}
	for k, v := range params {
		merged[k] = v
	}
	for name, spec := range m.Parameters {
		if _, present := merged[name]; !present && spec.Default != nil {
			merged[name] = spec.Default
		}
	}

	schemaJSON, err := compileParameterSchema(m.Parameters)
	if err != nil {
		return nil, err
	}
	dataJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}

	if err := validation.ValidateJSONWithSchema(schemaJSON, string(dataJSON)); err != nil {
		return nil, err
	}
	return merged, nil
}
