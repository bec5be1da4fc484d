package api

// ValidateInput checks input against schema: every key in schema.Required
// must be present with a non-null value, and every provided value whose
// declared type is a known JSON schema type must conform to it by runtime
// type test. The first violation found is returned as an INVALID_INPUT
// *EngineError naming the offending field and expected type. A nil schema
// accepts any input.
func ValidateInput(schema *JSONSchema, input map[string]any) error {
	if schema == nil {
		return nil
	}

	for _, field := range schema.Required {
		v, ok := input[field]
		if !ok || v == nil {
			return NewEngineError(CodeInvalidInput, "missing required field %q", field)
		}
	}

	for field, prop := range schema.Properties {
		v, ok := input[field]
		if !ok || v == nil {
			continue // absence of an optional field is not a violation
		}
		if prop.Type == "" {
			continue
		}
		if !matchesJSONType(v, prop.Type) {
			return NewEngineError(CodeInvalidInput, "field %q must be of type %s", field, prop.Type)
		}
	}

	return nil
}

// matchesJSONType reports whether v's runtime representation (as produced by
// encoding/json decoding into map[string]any) conforms to the named JSON
// schema type.
func matchesJSONType(v any, jsonType string) bool {
	switch jsonType {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
