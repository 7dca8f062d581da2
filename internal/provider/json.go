package provider

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CleanJSON extracts the JSON document from a possibly markdown-wrapped
// model response and validates it. Even schema-constrained completions
// go through this; some backends still wrap output in code fences.
func CleanJSON(response string) (string, error) {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	response = strings.TrimSpace(response)

	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON document found in response")
	}

	var end int
	if response[start] == '{' {
		end = strings.LastIndex(response, "}")
	} else {
		end = strings.LastIndex(response, "]")
	}
	if end <= start {
		return "", fmt.Errorf("unterminated JSON document in response")
	}

	doc := response[start : end+1]
	if !gjson.Valid(doc) {
		return "", fmt.Errorf("malformed JSON in response")
	}
	return doc, nil
}

// Field reads a single string field out of a JSON document.
func Field(doc []byte, path string) string {
	return gjson.GetBytes(doc, path).String()
}

// StringSlice reads an array of strings out of a JSON document.
func StringSlice(doc []byte, path string) []string {
	result := gjson.GetBytes(doc, path)
	if !result.Exists() || !result.IsArray() {
		return nil
	}
	items := result.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}

// Object declares a strict JSON-schema object with the given properties,
// all required, no additional fields. Helper for agent schemas.
func Object(properties map[string]any) map[string]any {
	required := make([]string, 0, len(properties))
	for name := range properties {
		required = append(required, name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// String is the JSON-schema string type.
func String() map[string]any {
	return map[string]any{"type": "string"}
}

// Number is the JSON-schema number type.
func Number() map[string]any {
	return map[string]any{"type": "number"}
}

// Array is the JSON-schema array type.
func Array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

// Enum is a JSON-schema string restricted to fixed values.
func Enum(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}
