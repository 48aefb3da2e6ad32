package tools

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	manifestKind     = "Tool"
	defaultTimeoutMs = 3000
)

//go:embed save_order.yaml
var saveOrderManifest []byte

// Registry holds the tool descriptors advertised to the dialogue policy.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*ToolDescriptor
	validator *SchemaValidator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]*ToolDescriptor),
		validator: NewSchemaValidator(),
	}
}

// NewDefaultRegistry returns a registry holding the built-in save_order tool.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadToolFromBytes(SaveOrderTool+".yaml", saveOrderManifest); err != nil {
		return nil, err
	}
	return r, nil
}

// Validator returns the registry's schema validator.
func (r *Registry) Validator() *SchemaValidator {
	return r.validator
}

// Register adds a tool descriptor to the registry with validation
func (r *Registry) Register(descriptor *ToolDescriptor) error {
	if err := r.validateDescriptor(descriptor); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[descriptor.Name] = descriptor
	return nil
}

// Get returns the descriptor for name, or nil.
func (r *Registry) Get(name string) *ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// GetTool retrieves a tool descriptor by name
func (r *Registry) GetTool(name string) (*ToolDescriptor, error) {
	if tool := r.Get(name); tool != nil {
		return tool, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns every registered descriptor in name order.
func (r *Registry) Descriptors() []*ToolDescriptor {
	names := r.List()
	out := make([]*ToolDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.Get(name))
	}
	return out
}

// LoadToolFromBytes loads a tool from a YAML manifest or a JSON descriptor.
// The filename parameter selects the format and is used for error reporting.
func (r *Registry) LoadToolFromBytes(filename string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var descriptor *ToolDescriptor
	var err error
	if ext == ".yaml" || ext == ".yml" {
		descriptor, err = parseManifest(filename, data)
	} else {
		descriptor = &ToolDescriptor{}
		if uerr := json.Unmarshal(data, descriptor); uerr != nil {
			err = fmt.Errorf("failed to parse JSON tool file %s: %w", filename, uerr)
		}
	}
	if err != nil {
		return err
	}

	if err := r.Register(descriptor); err != nil {
		return fmt.Errorf("invalid tool descriptor in %s: %w", filename, err)
	}
	return nil
}

// parseManifest converts a K8s-style YAML manifest to a descriptor. YAML is
// round-tripped through JSON so the schema lands as raw JSON.
func parseManifest(filename string, data []byte) (*ToolDescriptor, error) {
	var temp interface{}
	if err := yaml.Unmarshal(data, &temp); err != nil {
		return nil, fmt.Errorf("failed to parse YAML tool file %s: %w", filename, err)
	}
	jsonData, err := json.Marshal(temp)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest to JSON for %s: %w", filename, err)
	}

	var toolConfig ToolConfig
	if err := json.Unmarshal(jsonData, &toolConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest %s: %w", filename, err)
	}
	if toolConfig.Kind != manifestKind {
		return nil, fmt.Errorf("%w %s: expected kind %q, got %q", ErrInvalidManifest, filename, manifestKind, toolConfig.Kind)
	}
	if toolConfig.Metadata.Name == "" {
		return nil, fmt.Errorf("%w %s: metadata.name is required", ErrInvalidManifest, filename)
	}

	// metadata.name is authoritative.
	toolConfig.Spec.Name = toolConfig.Metadata.Name
	return &toolConfig.Spec, nil
}

// validateDescriptor validates a tool descriptor
func (r *Registry) validateDescriptor(descriptor *ToolDescriptor) error {
	if descriptor.Name == "" {
		return ErrToolNameRequired
	}
	if descriptor.Description == "" {
		return ErrToolDescriptionRequired
	}
	if len(descriptor.InputSchema) == 0 {
		return ErrInputSchemaRequired
	}
	if descriptor.TimeoutMs <= 0 {
		descriptor.TimeoutMs = defaultTimeoutMs
	}
	if _, err := r.validator.getSchema(string(descriptor.InputSchema)); err != nil {
		return fmt.Errorf("invalid input schema: %w", err)
	}
	return nil
}
