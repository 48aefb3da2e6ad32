// Package tools defines the actions the dialogue policy may request and the
// gate every persistence request passes through.
//
// Tool definitions are K8s-style manifests with a JSON Schema for their
// arguments. The save_order manifest ships embedded in the binary; the Gate
// validates save_order arguments against it, and against the order's own
// completeness rules, before anything reaches the order store.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ToolConfig represents a K8s-style tool configuration manifest
type ToolConfig struct {
	APIVersion string            `json:"apiVersion" yaml:"apiVersion"`
	Kind       string            `json:"kind" yaml:"kind"`
	Metadata   metav1.ObjectMeta `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Spec       ToolDescriptor    `json:"spec" yaml:"spec"`
}

// ToolDescriptor represents a normalized tool definition
type ToolDescriptor struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	InputSchema json.RawMessage `json:"input_schema" yaml:"input_schema"` // JSON Schema Draft-07
	TimeoutMs   int             `json:"timeout_ms" yaml:"timeout_ms"`
}

// ToolCall represents a tool invocation requested by the dialogue policy
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
	ID   string          `json:"id"` // Provider-specific call ID
}

// ValidationError represents a tool validation failure
type ValidationError struct {
	Type   string `json:"type"` // "args_invalid" | "order_incomplete"
	Tool   string `json:"tool"`
	Detail string `json:"detail"`

	// Fields names the offending arguments, in schema property names.
	Fields []string `json:"fields,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("tool %s validation error (%s): %s [%s]", e.Tool, e.Type, e.Detail, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("tool %s validation error (%s): %s", e.Tool, e.Type, e.Detail)
}
