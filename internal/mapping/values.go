package mapping

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValuePair maps one canonical value to one external value.
type ValuePair struct {
	Canonical string `yaml:"canonical"`
	External  string `yaml:"external"`
}

// ValueTable is an ordered translation table. Several pairs may share a
// canonical or an external value; the first match wins in each direction.
type ValueTable []ValuePair

// ParseValueTable parses the compact "Canonical:External, ..." form.
func ParseValueTable(s string) (ValueTable, error) {
	var t ValueTable
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		canonical, external, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("value pair %q: missing ':'", item)
		}
		t = append(t, ValuePair{Canonical: strings.TrimSpace(canonical), External: strings.TrimSpace(external)})
	}
	return t, nil
}

// MustParseValueTable is ParseValueTable for static tables.
func MustParseValueTable(s string) ValueTable {
	t, err := ParseValueTable(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ToCanonical returns the canonical value of the first pair whose external
// value is ext.
func (t ValueTable) ToCanonical(ext string) (string, bool) {
	for _, p := range t {
		if p.External == ext {
			return p.Canonical, true
		}
	}
	return "", false
}

// ToExternal returns the external value of the first pair whose canonical
// value is canonical.
func (t ValueTable) ToExternal(canonical string) (string, bool) {
	for _, p := range t {
		if p.Canonical == canonical {
			return p.External, true
		}
	}
	return "", false
}

// UnmarshalYAML accepts the compact string form, a list of "a:b" strings or
// a list of canonical/external maps.
func (t *ValueTable) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseValueTable(node.Value)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case yaml.SequenceNode:
		out := make(ValueTable, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				parsed, err := ParseValueTable(item.Value)
				if err != nil {
					return err
				}
				out = append(out, parsed...)
				continue
			}
			var p ValuePair
			if err := item.Decode(&p); err != nil {
				return err
			}
			out = append(out, p)
		}
		*t = out
		return nil
	}
	return fmt.Errorf("line %d: value table must be a string or a list", node.Line)
}
