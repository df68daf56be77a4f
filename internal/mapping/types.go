// Package mapping converts between external JSON documents and canonical
// records using declarative field mappings.
//
// A FieldMapping ties one canonical path to one external query path. The
// mappings that apply to a content type are those declared for it and for
// each of its ancestors; a tenant may replace the default mapping of any
// canonical path. Conversion is pure and never fails as a whole: problems
// with individual fields are returned as diagnostics.
package mapping

import (
	"fmt"

	"github.com/nucleus/itsm-core/internal/core"
)

// FieldType is the type of a canonical or external value.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeBoolean  FieldType = "boolean"
	TypeEnum     FieldType = "enum"
	TypeMessage  FieldType = "message"
	TypeRepeated FieldType = "repeated"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeBoolean, TypeEnum, TypeMessage, TypeRepeated:
		return true
	}
	return false
}

// FieldMapping maps one canonical field to one external field.
type FieldMapping struct {
	ContentType string `yaml:"contentType,omitempty"`
	// Tenant is empty for the default mapping.
	Tenant        string    `yaml:"tenant,omitempty"`
	CanonicalPath string    `yaml:"canonical"`
	CanonicalType FieldType `yaml:"type,omitempty"`
	ExternalPath  string    `yaml:"external,omitempty"`
	ExternalType  FieldType `yaml:"externalType,omitempty"`
	// DateFormat is a pattern such as "yyyy-MM-dd HH:mm:ss" or a Go layout.
	DateFormat string `yaml:"dateFormat,omitempty"`
	// FixedValue is written on every read and never written back.
	FixedValue *string    `yaml:"fixed,omitempty"`
	Values     ValueTable `yaml:"values,omitempty"`
}

// Fixed returns a pointer to s, for building fixed value mappings.
func Fixed(s string) *string { return &s }

// Strict reports whether unmapped values are an error for this field.
func (f FieldMapping) Strict() bool {
	return f.CanonicalType == TypeEnum && len(f.Values) > 0
}

// FieldCoercionError is returned when an external value cannot be converted
// to the declared canonical type, or back.
type FieldCoercionError struct {
	CanonicalPath string
	ExternalPath  string
	Type          FieldType
	Value         any
	Err           error
}

func (e *FieldCoercionError) Error() string {
	msg := fmt.Sprintf("cannot convert %v to %s for %s", e.Value, e.Type, e.CanonicalPath)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldCoercionError) Unwrap() error   { return e.Err }
func (e *FieldCoercionError) Kind() core.Kind { return core.KindFieldCoercion }

// Direction of a conversion.
type Direction string

const (
	Inbound  Direction = "to canonical"
	Outbound Direction = "to external"
)

// UnmappedEnumError is returned when a strict enum field carries a value
// missing from its value table. The field is left unset.
type UnmappedEnumError struct {
	CanonicalPath string
	Value         string
	Direction     Direction
}

func (e *UnmappedEnumError) Error() string {
	return fmt.Sprintf("value %q of %s has no mapping %s", e.Value, e.CanonicalPath, e.Direction)
}

func (e *UnmappedEnumError) Kind() core.Kind { return core.KindUnmappedEnum }
