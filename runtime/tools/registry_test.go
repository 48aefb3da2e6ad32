package tools_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/AltairaLabs/voicebarista/runtime/tools"
)

// TestNewRegistry verifies registry initialization
func TestNewRegistry(t *testing.T) {
	registry := tools.NewRegistry()
	if list := registry.List(); len(list) != 0 {
		t.Errorf("Expected empty registry, got %d tools", len(list))
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	registry, err := tools.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}

	tool := registry.Get(tools.SaveOrderTool)
	if tool == nil {
		t.Fatal("save_order not registered")
	}
	if tool.TimeoutMs != 2000 {
		t.Errorf("TimeoutMs = %d, want 2000", tool.TimeoutMs)
	}

	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
		t.Fatalf("input schema is not JSON: %v", err)
	}
	want := []string{"drinkType", "size", "milk", "extras", "name"}
	if len(schema.Required) != len(want) {
		t.Fatalf("required = %v, want %v", schema.Required, want)
	}
	for i := range want {
		if schema.Required[i] != want[i] {
			t.Errorf("required[%d] = %s, want %s", i, schema.Required[i], want[i])
		}
	}
}

// TestRegister verifies tool registration
func TestRegister(t *testing.T) {
	registry := tools.NewRegistry()

	descriptor := &tools.ToolDescriptor{
		Name:        "end_call",
		Description: "Ends the call",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
	if err := registry.Register(descriptor); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	retrieved := registry.Get("end_call")
	if retrieved == nil {
		t.Fatal("Failed to retrieve registered tool")
	}
	if retrieved.TimeoutMs != 3000 {
		t.Errorf("Expected default timeout 3000, got %d", retrieved.TimeoutMs)
	}
	if registry.Get("missing") != nil {
		t.Error("Get returned a tool that was never registered")
	}
}

func TestDescriptorsSorted(t *testing.T) {
	registry := tools.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_ = registry.Register(&tools.ToolDescriptor{
			Name:        name,
			Description: "x",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		})
	}

	descs := registry.Descriptors()
	if len(descs) != 3 || descs[0].Name != "alpha" || descs[2].Name != "zeta" {
		t.Errorf("Descriptors() not sorted: %v", registry.List())
	}
}

func TestLoadToolFromBytes_Manifest(t *testing.T) {
	manifest := `
apiVersion: barista.altairalabs.ai/v1alpha1
kind: Tool
metadata:
  name: lookup_menu
spec:
  name: ignored
  description: Looks up the menu
  input_schema:
    type: object
`
	registry := tools.NewRegistry()
	if err := registry.LoadToolFromBytes("menu.yaml", []byte(manifest)); err != nil {
		t.Fatalf("LoadToolFromBytes failed: %v", err)
	}
	if registry.Get("lookup_menu") == nil {
		t.Error("metadata.name should name the tool")
	}
}

func TestLoadToolFromBytes_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     string
		want     error
	}{
		{
			name:     "wrong kind",
			filename: "x.yaml",
			data:     "apiVersion: v1\nkind: Prompt\nmetadata:\n  name: x\n",
			want:     tools.ErrInvalidManifest,
		},
		{
			name:     "missing metadata name",
			filename: "x.yaml",
			data:     "apiVersion: v1\nkind: Tool\nspec:\n  description: d\n",
			want:     tools.ErrInvalidManifest,
		},
		{
			name:     "bad yaml",
			filename: "x.yml",
			data:     "kind: [",
		},
		{
			name:     "bad json",
			filename: "x.json",
			data:     "{",
		},
		{
			name:     "name required",
			filename: "x.json",
			data:     `{"name": "", "description": "d", "input_schema": {"type": "object"}}`,
			want:     tools.ErrToolNameRequired,
		},
		{
			name:     "description required",
			filename: "x.json",
			data:     `{"name": "x", "input_schema": {"type": "object"}}`,
			want:     tools.ErrToolDescriptionRequired,
		},
		{
			name:     "schema required",
			filename: "x.json",
			data:     `{"name": "x", "description": "d"}`,
			want:     tools.ErrInputSchemaRequired,
		},
		{
			name:     "schema does not compile",
			filename: "x.json",
			data:     `{"name": "x", "description": "d", "input_schema": {"type": 12}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tools.NewRegistry().LoadToolFromBytes(tt.filename, []byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGetToolNotFound(t *testing.T) {
	_, err := tools.NewRegistry().GetTool("nonexistent")
	if !errors.Is(err, tools.ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}
