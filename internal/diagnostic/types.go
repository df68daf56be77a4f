// Package diagnostic carries recoverable problems found while converting
// records. Conversion never aborts on a bad field; the problem is recorded
// here and returned next to the result.
package diagnostic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nucleus/itsm-core/internal/core"
)

// Severity of a diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Diagnostic is one recoverable problem.
type Diagnostic struct {
	Severity Severity
	// Code is the error kind, e.g. "field_coercion" or "unmapped_enum".
	Code        core.Kind
	Message     string
	ContentType string
	// FieldPath is the canonical path the problem relates to.
	FieldPath string
	RecordID  string
	Err       error
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	b.WriteString(" [")
	b.WriteString(string(d.Code))
	b.WriteString("]")
	if d.ContentType != "" {
		fmt.Fprintf(&b, " %s", d.ContentType)
	}
	if d.RecordID != "" {
		fmt.Fprintf(&b, "(%s)", d.RecordID)
	}
	if d.FieldPath != "" {
		fmt.Fprintf(&b, " %s", d.FieldPath)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Diagnostics is an ordered list of diagnostics.
type Diagnostics []Diagnostic

// AddError records err as a warning. The code is taken from the error kind.
func (d *Diagnostics) AddError(contentType, fieldPath string, err error) {
	*d = append(*d, Diagnostic{
		Severity:    Warning,
		Code:        core.KindOf(err),
		Message:     err.Error(),
		ContentType: contentType,
		FieldPath:   fieldPath,
		Err:         err,
	})
}

// AddInfo records an informational note.
func (d *Diagnostics) AddInfo(code core.Kind, contentType, fieldPath, message string) {
	*d = append(*d, Diagnostic{
		Severity:    Info,
		Code:        code,
		Message:     message,
		ContentType: contentType,
		FieldPath:   fieldPath,
	})
}

// Merge appends other to d.
func (d *Diagnostics) Merge(other Diagnostics) {
	*d = append(*d, other...)
}

// WithRecordID stamps every diagnostic that has no record id yet.
func (d Diagnostics) WithRecordID(id string) Diagnostics {
	for i := range d {
		if d[i].RecordID == "" {
			d[i].RecordID = id
		}
	}
	return d
}

// Warnings returns the diagnostics of warning severity.
func (d Diagnostics) Warnings() Diagnostics {
	var out Diagnostics
	for _, x := range d {
		if x.Severity == Warning {
			out = append(out, x)
		}
	}
	return out
}

// ByCode returns the diagnostics with the given code.
func (d Diagnostics) ByCode(code core.Kind) Diagnostics {
	var out Diagnostics
	for _, x := range d {
		if x.Code == code {
			out = append(out, x)
		}
	}
	return out
}

// Err joins the underlying errors, or returns nil when there are none.
func (d Diagnostics) Err() error {
	var errs []error
	for _, x := range d {
		if x.Err != nil {
			errs = append(errs, x.Err)
		}
	}
	return errors.Join(errs...)
}
