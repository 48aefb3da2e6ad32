package tools

import "errors"

var (
	// ErrToolNotFound is returned for a name the registry does not hold.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidManifest is returned for a YAML manifest that is not a Tool.
	ErrInvalidManifest = errors.New("invalid tool manifest")

	// Descriptor completeness.
	ErrToolNameRequired        = errors.New("tool name is required")
	ErrToolDescriptionRequired = errors.New("tool description is required")
	ErrInputSchemaRequired     = errors.New("input schema is required")
)
