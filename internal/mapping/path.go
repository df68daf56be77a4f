package mapping

import (
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/nucleus/itsm-core/internal/core"
)

// ReferenceValueKey is the key holding the id inside a reference wrapper
// such as {"link": "...", "value": "<sys_id>"}.
const ReferenceValueKey = "value"

// ExternalPath is a parsed external query path, a JSONPath restricted to
// keys and array positions:
//
//	number                plain key
//	$.opened_by.value     reference wrapper id (a plain string is accepted too)
//	$._comments[*].value  projection over every array element
//	items[0].name         single array element
type ExternalPath struct {
	raw  string
	full jp.Expr
	// prefix selects the array, suffix the value inside one element. Set
	// for a wildcard or a fixed index.
	prefix   jp.Expr
	suffix   jp.Expr
	index    int
	wildcard bool
	// reference is set when the last key is ReferenceValueKey.
	reference bool
}

// ParseExternalPath parses s. At most one wildcard is allowed so projected
// values keep their element positions.
func ParseExternalPath(s string) (ExternalPath, error) {
	p := ExternalPath{raw: s, index: -1}
	if s == "" {
		return p, fmt.Errorf("empty external path")
	}
	x, err := jp.ParseString(s)
	if err != nil {
		return p, fmt.Errorf("external path %q: %w", s, err)
	}
	if len(x) > 0 {
		if _, ok := x[0].(jp.Root); ok {
			x = x[1:]
		}
	}
	if len(x) == 0 {
		return p, fmt.Errorf("empty external path %q", s)
	}
	if _, ok := x[0].(jp.Child); !ok {
		return p, fmt.Errorf("external path %q: must start with a key", s)
	}

	split := -1
	for i, frag := range x {
		switch f := frag.(type) {
		case jp.Child:
			if f == "" {
				return p, fmt.Errorf("external path %q: empty segment", s)
			}
		case jp.Wildcard:
			if p.wildcard {
				return p, fmt.Errorf("external path %q: only one wildcard allowed", s)
			}
			p.wildcard = true
			split = i
		case jp.Nth:
			if f < 0 {
				return p, fmt.Errorf("external path %q: bad index %d", s, int(f))
			}
			if split < 0 {
				split = i
				p.index = int(f)
			}
		default:
			return p, fmt.Errorf("external path %q: unsupported selector %q", s, jp.Expr{frag}.String())
		}
	}
	p.full = x
	if split >= 0 {
		p.prefix, p.suffix = x[:split], x[split+1:]
	}
	if last, ok := x[len(x)-1].(jp.Child); ok && len(x) > 1 && string(last) == ReferenceValueKey {
		p.reference = true
	}
	return p, nil
}

func (p ExternalPath) String() string { return p.raw }

// Multi reports whether the path projects over an array.
func (p ExternalPath) Multi() bool { return p.wildcard }

// Resolve reads the path from doc. A single-valued path returns at most one
// value. A wildcard path returns one entry per array element, nil where the
// element has no value. JSON nulls count as missing.
func (p ExternalPath) Resolve(doc core.Document) []any {
	root := map[string]any(doc)
	if !p.wildcard {
		if v := p.lookup(p.full, root); v != nil {
			return []any{v}
		}
		return nil
	}
	arr, ok := get(p.prefix, root).([]any)
	if !ok {
		return nil
	}
	out := make([]any, len(arr))
	for i, elem := range arr {
		if elem != nil {
			out[i] = p.lookup(p.suffix, elem)
		}
	}
	return out
}

// lookup reads x from node. A reference may come back as a bare id instead
// of a wrapper.
func (p ExternalPath) lookup(x jp.Expr, node any) any {
	if v := get(x, node); v != nil {
		return v
	}
	if p.reference && len(x) > 0 {
		if parent := get(x[:len(x)-1], node); isScalar(parent) {
			return parent
		}
	}
	return nil
}

// get is x.First with an empty expression selecting node itself.
func get(x jp.Expr, node any) any {
	if len(x) == 0 {
		return node
	}
	switch node.(type) {
	case map[string]any, []any:
		return x.First(node)
	}
	return nil
}

// Assign writes v at the path, creating objects and arrays as needed.
// A trailing reference value segment is collapsed: the id is written at the
// parent key, which is the form the ITSM API accepts on write.
func (p ExternalPath) Assign(doc core.Document, v any) error {
	return p.AssignAt(doc, 0, v)
}

// AssignAt writes v into element index of the wildcard segment. For paths
// without a wildcard, index is ignored.
func (p ExternalPath) AssignAt(doc core.Document, index int, v any) error {
	root := map[string]any(doc)
	if len(p.prefix) == 0 {
		return set(collapse(p.full, p.reference), root, v)
	}
	if !p.wildcard {
		index = p.index
	}
	arr, _ := get(p.prefix, root).([]any)
	for len(arr) <= index {
		arr = append(arr, nil)
	}
	if suffix := collapse(p.suffix, p.reference); len(suffix) == 0 {
		arr[index] = v
	} else {
		elem, ok := arr[index].(map[string]any)
		if !ok {
			elem = map[string]any{}
			arr[index] = elem
		}
		if err := set(suffix, elem, v); err != nil {
			return err
		}
	}
	return set(p.prefix, root, arr)
}

func set(x jp.Expr, node any, v any) error {
	if err := x.Set(node, v); err != nil {
		return fmt.Errorf("assign %s: %w", x, err)
	}
	return nil
}

// collapse drops the trailing reference value key.
func collapse(x jp.Expr, reference bool) jp.Expr {
	if reference && len(x) > 0 {
		return x[:len(x)-1]
	}
	return x
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, bool, int, int64:
		return true
	}
	return false
}
