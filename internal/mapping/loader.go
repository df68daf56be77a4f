package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Group is a set of field mappings sharing a content type and tenant.
// Prefixes are prepended to every field of the group, which lets a nested
// entity (such as the configuration items joined into a ticket) reuse one
// field list.
type Group struct {
	ContentType     string         `yaml:"contentType"`
	Tenant          string         `yaml:"tenant,omitempty"`
	CanonicalPrefix string         `yaml:"canonicalPrefix,omitempty"`
	ExternalPrefix  string         `yaml:"externalPrefix,omitempty"`
	Fields          []FieldMapping `yaml:"fields"`
}

// File is the top level of a mapping YAML document.
type File struct {
	Version string  `yaml:"version"`
	Groups  []Group `yaml:"mappings"`
}

// Parse reads a mapping table from YAML.
func Parse(data []byte) ([]FieldMapping, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mapping YAML: %w", err)
	}
	var table []FieldMapping
	for gi, g := range f.Groups {
		if g.ContentType == "" {
			return nil, fmt.Errorf("mapping group %d: contentType is required", gi)
		}
		for _, fm := range g.Fields {
			fm.ContentType = g.ContentType
			fm.Tenant = g.Tenant
			fm.CanonicalPath = g.CanonicalPrefix + fm.CanonicalPath
			if fm.ExternalPath != "" {
				fm.ExternalPath = g.ExternalPrefix + fm.ExternalPath
			}
			if _, err := compile(fm); err != nil {
				return nil, fmt.Errorf("mapping group %d (%s): %w", gi, g.ContentType, err)
			}
			table = append(table, fm)
		}
	}
	return table, nil
}

// LoadFile reads and parses a mapping YAML file.
func LoadFile(path string) ([]FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(data)
}
