package mapping

import (
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nucleus/itsm-core/internal/core"
	"github.com/nucleus/itsm-core/internal/core/cdm"
	"github.com/nucleus/itsm-core/internal/diagnostic"
)

// errAbsent marks a value that is present but empty, treated as missing.
var errAbsent = errors.New("absent")

// ToCanonical converts an external document into a canonical record.
// Fields whose external value is missing are left unset. Per-field problems
// are returned as diagnostics and never abort the conversion.
func ToCanonical(doc core.Document, sm *SchemaMapping) (*cdm.Record, diagnostic.Diagnostics) {
	rec := cdm.NewRecord()
	var diags diagnostic.Diagnostics
	for _, f := range sm.fields {
		for _, err := range f.read(doc, rec) {
			diags.AddError(sm.ContentType, f.CanonicalPath, err)
		}
	}
	return rec, diags
}

// ToExternal converts a canonical record into an external document. Fixed
// value mappings are skipped.
func ToExternal(rec *cdm.Record, sm *SchemaMapping) (core.Document, diagnostic.Diagnostics) {
	doc := core.Document{}
	var diags diagnostic.Diagnostics
	cursor := map[string]int{}
	for _, f := range sm.fields {
		if !f.hasExt {
			continue
		}
		slot := -1
		if f.shared {
			slot = cursor[f.CanonicalPath]
			cursor[f.CanonicalPath]++
		}
		for _, err := range f.write(rec, doc, slot) {
			diags.AddError(sm.ContentType, f.CanonicalPath, err)
		}
	}
	return doc, diags
}

func (f compiledField) read(doc core.Document, rec *cdm.Record) []error {
	if f.FixedValue != nil {
		return wrap(rec.Set(f.canon, structpb.NewStringValue(*f.FixedValue)))
	}
	raw := f.ext.Resolve(doc)
	if len(raw) == 0 {
		return nil
	}
	// A single external array feeding a repeated target behaves like a
	// projection.
	if !f.ext.Multi() && f.canon.IsRepeated() {
		if arr, ok := raw[0].([]any); ok {
			raw = arr
		}
	}

	var errs []error
	switch {
	case f.canon.IsRepeated() && (f.ext.Multi() || len(raw) > 1):
		for i, v := range raw {
			if v == nil {
				continue
			}
			cv, err := f.toCanonicalValue(v)
			if err != nil {
				errs = appendReal(errs, err)
				continue
			}
			if err := rec.SetElement(f.canon, i, cv); err != nil {
				errs = append(errs, err)
			}
		}
	case f.canon.IsRepeated():
		cv, err := f.toCanonicalValue(raw[0])
		if err != nil {
			return wrap(realOrNil(err))
		}
		if f.canon.RepeatedIndex() == len(f.canon)-1 {
			return wrap(rec.Append(f.canon, cv))
		}
		return wrap(rec.SetElement(f.canon, 0, cv))
	case f.CanonicalType == TypeRepeated:
		list := &structpb.ListValue{}
		for _, v := range flatten(raw) {
			cv, err := f.toCanonicalValue(v)
			if err != nil {
				errs = appendReal(errs, err)
				continue
			}
			list.Values = append(list.Values, cv)
		}
		if len(list.Values) > 0 {
			if err := rec.Set(f.canon, structpb.NewListValue(list)); err != nil {
				errs = append(errs, err)
			}
		}
	default:
		v := firstPresent(raw)
		if v == nil {
			return nil
		}
		cv, err := f.toCanonicalValue(v)
		if err != nil {
			return wrap(realOrNil(err))
		}
		return wrap(rec.Set(f.canon, cv))
	}
	return errs
}

// write copies the field from rec into doc. A slot of zero or more selects
// the one list element a shared field writes.
func (f compiledField) write(rec *cdm.Record, doc core.Document, slot int) []error {
	vals := rec.Values(f.canon)
	if len(vals) == 0 {
		return nil
	}
	var errs []error
	if f.canon.IsRepeated() && !f.ext.Multi() {
		present := make([]*structpb.Value, 0, len(vals))
		for _, v := range vals {
			if v != nil {
				present = append(present, v)
			}
		}
		switch {
		case slot >= 0:
			if slot >= len(present) {
				return nil
			}
			present = present[slot:]
		case len(present) == 0:
			return nil
		case len(present) > 1 && f.canon.RepeatedIndex() == len(f.canon)-1:
			// A list of scalars goes out as an array.
			arr := make([]any, 0, len(present))
			for _, v := range present {
				out, err := f.toExternalValue(v)
				if err != nil {
					errs = appendReal(errs, err)
					continue
				}
				arr = append(arr, out)
			}
			if err := f.ext.Assign(doc, arr); err != nil {
				errs = append(errs, err)
			}
			return errs
		}
		// A repeated message written to a single external field keeps its
		// first element.
		vals = present[:1]
	}
	if !f.canon.IsRepeated() && f.ext.Multi() {
		if list := vals[0].GetListValue(); list != nil {
			vals = list.GetValues()
		}
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		out, err := f.toExternalValue(v)
		if err != nil {
			errs = appendReal(errs, err)
			continue
		}
		if f.ext.Multi() {
			err = f.ext.AssignAt(doc, i, out)
		} else {
			err = f.ext.Assign(doc, out)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (f compiledField) toCanonicalValue(v any) (*structpb.Value, error) {
	if f.CanonicalType != TypeMessage {
		v = unwrapReference(v)
	}
	switch f.CanonicalType {
	case TypeString, TypeRepeated:
		s, ok := scalarString(v)
		if !ok {
			return nil, f.coercion(v, fmt.Errorf("not a scalar"))
		}
		if mapped, ok := f.Values.ToCanonical(s); ok {
			s = mapped
		}
		return structpb.NewStringValue(s), nil
	case TypeEnum:
		s, ok := scalarString(v)
		if !ok {
			return nil, f.coercion(v, fmt.Errorf("not a scalar"))
		}
		if s == "" {
			return nil, errAbsent
		}
		if len(f.Values) == 0 {
			return structpb.NewStringValue(s), nil
		}
		mapped, ok := f.Values.ToCanonical(s)
		if !ok {
			return nil, &UnmappedEnumError{CanonicalPath: f.CanonicalPath, Value: s, Direction: Inbound}
		}
		return structpb.NewStringValue(mapped), nil
	case TypeNumber:
		switch x := v.(type) {
		case float64:
			return structpb.NewNumberValue(x), nil
		case string:
			if x == "" {
				return nil, errAbsent
			}
			n, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, f.coercion(v, err)
			}
			return structpb.NewNumberValue(n), nil
		}
		return nil, f.coercion(v, fmt.Errorf("unexpected %T", v))
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return structpb.NewBoolValue(x), nil
		case string:
			if x == "" {
				return nil, errAbsent
			}
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, f.coercion(v, err)
			}
			return structpb.NewBoolValue(b), nil
		}
		return nil, f.coercion(v, fmt.Errorf("unexpected %T", v))
	case TypeDate:
		if s, ok := v.(string); ok && s == "" {
			return nil, errAbsent
		}
		ms, err := parseDate(v, f.date)
		if err != nil {
			return nil, f.coercion(v, err)
		}
		return structpb.NewNumberValue(ms), nil
	case TypeMessage:
		pv, err := structpb.NewValue(v)
		if err != nil {
			return nil, f.coercion(v, err)
		}
		return pv, nil
	}
	return nil, f.coercion(v, fmt.Errorf("unknown type %q", f.CanonicalType))
}

func (f compiledField) toExternalValue(v *structpb.Value) (any, error) {
	switch f.CanonicalType {
	case TypeDate:
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, f.coercion(v.AsInterface(), fmt.Errorf("date is not epoch milliseconds"))
		}
		return formatDate(n.NumberValue, f.date), nil
	case TypeEnum:
		s := v.GetStringValue()
		if len(f.Values) == 0 {
			return s, nil
		}
		ext, ok := f.Values.ToExternal(s)
		if !ok {
			return nil, &UnmappedEnumError{CanonicalPath: f.CanonicalPath, Value: s, Direction: Outbound}
		}
		return ext, nil
	case TypeMessage:
		return v.AsInterface(), nil
	case TypeRepeated:
		if list := v.GetListValue(); list != nil {
			out := make([]any, 0, len(list.GetValues()))
			for _, e := range list.GetValues() {
				out = append(out, f.externalScalar(e))
			}
			return out, nil
		}
	}
	return f.externalScalar(v), nil
}

// externalScalar renders a scalar in the declared external type.
func (f compiledField) externalScalar(v *structpb.Value) any {
	switch x := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if ext, ok := f.Values.ToExternal(x.StringValue); ok {
			return ext
		}
		return x.StringValue
	case *structpb.Value_NumberValue:
		if f.ExternalType == TypeString {
			return strconv.FormatFloat(x.NumberValue, 'f', -1, 64)
		}
		return x.NumberValue
	case *structpb.Value_BoolValue:
		if f.ExternalType == TypeString {
			return strconv.FormatBool(x.BoolValue)
		}
		return x.BoolValue
	}
	return v.AsInterface()
}

func (f compiledField) coercion(v any, err error) error {
	return &FieldCoercionError{
		CanonicalPath: f.CanonicalPath,
		ExternalPath:  f.ExternalPath,
		Type:          f.CanonicalType,
		Value:         v,
		Err:           err,
	}
}

// unwrapReference returns the id of a {"value": ..., "link": ...} wrapper.
func unwrapReference(v any) any {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m[ReferenceValueKey]; ok {
			return id
		}
	}
	return v
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func firstPresent(vals []any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func flatten(vals []any) []any {
	var out []any
	for _, v := range vals {
		switch x := v.(type) {
		case nil:
		case []any:
			out = append(out, flatten(x)...)
		default:
			out = append(out, x)
		}
	}
	return out
}

func wrap(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}

func realOrNil(err error) error {
	if errors.Is(err, errAbsent) {
		return nil
	}
	return err
}

func appendReal(errs []error, err error) []error {
	if errors.Is(err, errAbsent) {
		return errs
	}
	return append(errs, err)
}
