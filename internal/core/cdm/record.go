// Package cdm provides the canonical record produced by the mapping engine.
//
// A Record is a tree of named fields held in a protobuf Struct. Leaves are
// strings, numbers (dates are epoch milliseconds), booleans, nested messages
// or lists. Fields are addressed with dotted paths; a "name[]" segment
// addresses the elements of a repeated field.
package cdm

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Record is a canonical record. The zero value is not usable; use NewRecord.
type Record struct {
	s *structpb.Struct
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{s: &structpb.Struct{Fields: map[string]*structpb.Value{}}}
}

// FromMap builds a record from plain Go values.
func FromMap(m map[string]any) (*Record, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build canonical record: %w", err)
	}
	return &Record{s: s}, nil
}

// Struct exposes the underlying protobuf message.
func (r *Record) Struct() *structpb.Struct { return r.s }

// AsMap converts the record to plain Go values.
func (r *Record) AsMap() map[string]any { return r.s.AsMap() }

// Len returns the number of top-level fields.
func (r *Record) Len() int { return len(r.s.GetFields()) }

func (r *Record) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(r.s)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return err
	}
	r.s = s
	return nil
}

// Get returns the value at a path without repeated segments.
func (r *Record) Get(path string) (*structpb.Value, bool) {
	p, err := ParsePath(path)
	if err != nil || p.IsRepeated() {
		return nil, false
	}
	return lookup(r.s, p)
}

// GetString returns the string at path, or "".
func (r *Record) GetString(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// Values projects a path. For a path without repeated segments it returns at
// most one value. For a repeated path it returns one entry per list element,
// nil where the element has no value, so callers can keep element positions.
func (r *Record) Values(path Path) []*structpb.Value {
	ri := path.RepeatedIndex()
	if ri < 0 {
		if v, ok := lookup(r.s, path); ok {
			return []*structpb.Value{v}
		}
		return nil
	}
	list, ok := lookup(r.s, path[:ri+1])
	if !ok || list.GetListValue() == nil {
		return nil
	}
	rest := path[ri+1:]
	elems := list.GetListValue().GetValues()
	out := make([]*structpb.Value, len(elems))
	for i, e := range elems {
		if isNull(e) {
			continue
		}
		if len(rest) == 0 {
			out[i] = e
			continue
		}
		if st := e.GetStructValue(); st != nil {
			if v, ok := lookup(st, rest); ok {
				out[i] = v
			}
		}
	}
	return out
}

// Set writes v at a path without repeated segments, creating intermediate
// messages. A leaf "name[]" segment accepts a list value.
func (r *Record) Set(path Path, v *structpb.Value) error {
	ri := path.RepeatedIndex()
	if ri >= 0 && ri != len(path)-1 {
		return fmt.Errorf("set %s: path addresses list elements, use SetElement", path)
	}
	parent, err := ensure(r.s, path[:len(path)-1])
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	parent.Fields[path[len(path)-1].Name] = v
	return nil
}

// SetElement writes v into element index of the repeated segment of path.
// The list is grown with nulls as needed; element messages are created on
// demand so several paths can fill fields of the same element.
func (r *Record) SetElement(path Path, index int, v *structpb.Value) error {
	ri := path.RepeatedIndex()
	if ri < 0 {
		return fmt.Errorf("set element %s: path has no repeated segment", path)
	}
	if index < 0 {
		return fmt.Errorf("set element %s: negative index %d", path, index)
	}
	parent, err := ensure(r.s, path[:ri])
	if err != nil {
		return fmt.Errorf("set element %s: %w", path, err)
	}
	name := path[ri].Name
	cur := parent.Fields[name]
	list := cur.GetListValue()
	if list == nil {
		if cur != nil && !isNull(cur) {
			return fmt.Errorf("set element %s: %s is not a list", path, name)
		}
		list = &structpb.ListValue{}
		parent.Fields[name] = structpb.NewListValue(list)
	}
	for len(list.Values) <= index {
		list.Values = append(list.Values, structpb.NewNullValue())
	}
	rest := path[ri+1:]
	if len(rest) == 0 {
		list.Values[index] = v
		return nil
	}
	elem := list.Values[index].GetStructValue()
	if elem == nil {
		elem = &structpb.Struct{Fields: map[string]*structpb.Value{}}
		list.Values[index] = structpb.NewStructValue(elem)
	}
	leafParent, err := ensure(elem, rest[:len(rest)-1])
	if err != nil {
		return fmt.Errorf("set element %s: %w", path, err)
	}
	leafParent.Fields[rest[len(rest)-1].Name] = v
	return nil
}

// Append adds v to the end of the list at path.
func (r *Record) Append(path Path, v *structpb.Value) error {
	n := 0
	if ri := path.RepeatedIndex(); ri >= 0 {
		if list, ok := lookup(r.s, path[:ri+1]); ok && list.GetListValue() != nil {
			n = len(list.GetListValue().GetValues())
		}
	}
	return r.SetElement(path, n, v)
}

// Delete removes the field at a path without repeated segments.
func (r *Record) Delete(path string) {
	p, err := ParsePath(path)
	if err != nil || p.IsRepeated() {
		return
	}
	parent := r.s
	for _, seg := range p[:len(p)-1] {
		next := parent.GetFields()[seg.Name].GetStructValue()
		if next == nil {
			return
		}
		parent = next
	}
	delete(parent.Fields, p[len(p)-1].Name)
}

func lookup(s *structpb.Struct, p Path) (*structpb.Value, bool) {
	cur := s
	for i, seg := range p {
		v, ok := cur.GetFields()[seg.Name]
		if !ok || isNull(v) {
			return nil, false
		}
		if i == len(p)-1 {
			return v, true
		}
		if cur = v.GetStructValue(); cur == nil {
			return nil, false
		}
	}
	return nil, false
}

func ensure(s *structpb.Struct, p Path) (*structpb.Struct, error) {
	cur := s
	for _, seg := range p {
		v, ok := cur.Fields[seg.Name]
		if !ok || isNull(v) {
			next := &structpb.Struct{Fields: map[string]*structpb.Value{}}
			cur.Fields[seg.Name] = structpb.NewStructValue(next)
			cur = next
			continue
		}
		next := v.GetStructValue()
		if next == nil {
			return nil, fmt.Errorf("%s is not a message", seg.Name)
		}
		if next.Fields == nil {
			next.Fields = map[string]*structpb.Value{}
		}
		cur = next
	}
	return cur, nil
}

func isNull(v *structpb.Value) bool {
	if v == nil {
		return true
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return null || v.GetKind() == nil
}
