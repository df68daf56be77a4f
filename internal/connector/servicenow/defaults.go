package servicenow

import (
	_ "embed"
	"fmt"

	"github.com/nucleus/itsm-core/internal/mapping"
)

//go:embed mappings.yaml
var defaultMappingsYAML []byte

// DefaultMappings returns the built-in field mappings of the table API.
func DefaultMappings() ([]mapping.FieldMapping, error) {
	table, err := mapping.Parse(defaultMappingsYAML)
	if err != nil {
		return nil, fmt.Errorf("default mappings: %w", err)
	}
	return table, nil
}
