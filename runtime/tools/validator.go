package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// schemaRoot is how gojsonschema names the document root in error fields.
const schemaRoot = "(root)"

// SchemaValidator handles JSON schema validation for tool inputs
type SchemaValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// ValidateArgs validates tool arguments against the input schema
func (sv *SchemaValidator) ValidateArgs(descriptor *ToolDescriptor, args json.RawMessage) error {
	schema, err := sv.getSchema(string(descriptor.InputSchema))
	if err != nil {
		return fmt.Errorf("invalid input schema for tool %s: %w", descriptor.Name, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		// Not JSON at all.
		return &ValidationError{
			Type:   "args_invalid",
			Tool:   descriptor.Name,
			Detail: fmt.Sprintf("arguments are not valid JSON: %v", err),
		}
	}

	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		var fields []string
		seen := map[string]bool{}
		for i, desc := range result.Errors() {
			details[i] = desc.String()
			if f := offendingField(desc); f != "" && !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
		return &ValidationError{
			Type:   "args_invalid",
			Tool:   descriptor.Name,
			Detail: fmt.Sprintf("argument validation failed: %v", details),
			Fields: fields,
		}
	}

	return nil
}

// offendingField maps a schema error to the top-level property it concerns.
func offendingField(desc gojsonschema.ResultError) string {
	if desc.Type() == "required" {
		if p, ok := desc.Details()["property"].(string); ok {
			return p
		}
	}
	field := desc.Field()
	if field == schemaRoot {
		if p, ok := desc.Details()["property"].(string); ok {
			return p
		}
		return ""
	}
	field, _, _ = strings.Cut(field, ".")
	return field
}

// getSchema retrieves or compiles a JSON schema
func (sv *SchemaValidator) getSchema(schemaJSON string) (*gojsonschema.Schema, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if schema, exists := sv.cache[schemaJSON]; exists {
		return schema, nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, err
	}

	sv.cache[schemaJSON] = schema
	return schema, nil
}
