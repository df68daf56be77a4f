package cdm

import (
	"fmt"
	"strings"
)

// Segment is one dotted component of a canonical path.
type Segment struct {
	Name string
	// Repeated marks a "name[]" segment addressing a list.
	Repeated bool
}

// Path is a parsed canonical path such as "cmdbCis[].entity.name".
// At most one segment may be repeated.
type Path []Segment

// ParsePath parses a dotted canonical path.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty canonical path")
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	repeated := 0
	for _, part := range parts {
		seg := Segment{Name: part}
		if strings.HasSuffix(part, "[]") {
			seg.Name = strings.TrimSuffix(part, "[]")
			seg.Repeated = true
			repeated++
		}
		if seg.Name == "" || strings.ContainsAny(seg.Name, "[]") {
			return nil, fmt.Errorf("invalid segment %q in canonical path %q", part, s)
		}
		p = append(p, seg)
	}
	if repeated > 1 {
		return nil, fmt.Errorf("canonical path %q has more than one repeated segment", s)
	}
	return p, nil
}

// MustParsePath is ParsePath for static paths.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// RepeatedIndex returns the position of the repeated segment, or -1.
func (p Path) RepeatedIndex() int {
	for i, seg := range p {
		if seg.Repeated {
			return i
		}
	}
	return -1
}

// IsRepeated reports whether the path addresses a list.
func (p Path) IsRepeated() bool { return p.RepeatedIndex() >= 0 }

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = seg.Name
		if seg.Repeated {
			parts[i] += "[]"
		}
	}
	return strings.Join(parts, ".")
}
