package contenttype

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Node is the YAML form of a content type and its subtree.
type Node struct {
	Name       string `yaml:"name"`
	Resource   string `yaml:"resource,omitempty"`
	Creatable  bool   `yaml:"creatable,omitempty"`
	Modifiable bool   `yaml:"modifiable,omitempty"`
	Children   []Node `yaml:"children,omitempty"`
}

// File is the top level of a content type YAML document.
type File struct {
	Types []Node `yaml:"types"`
}

// Parse builds a registry from YAML.
//
//	types:
//	  - name: Ticket
//	    children:
//	      - name: Incident
//	        resource: incident
//	        creatable: true
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse content type YAML: %w", err)
	}
	b := NewBuilder()
	var add func(n Node, parent *ContentType) error
	add = func(n Node, parent *ContentType) error {
		node, err := b.RegisterUnder(ContentType{
			Name:                 n.Name,
			ExternalResourceName: n.Resource,
			Creatable:            n.Creatable,
			Modifiable:           n.Modifiable,
		}, parent)
		if err != nil {
			return err
		}
		for _, ch := range n.Children {
			if err := add(ch, node); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range f.Types {
		if err := add(n, nil); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// LoadFile reads and parses a content type YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content type file: %w", err)
	}
	return Parse(data)
}
