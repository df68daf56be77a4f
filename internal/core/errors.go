package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding whether an operation can go on.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindFieldCoercion Kind = "field_coercion"
	KindUnmappedEnum  Kind = "unmapped_enum"
	KindPolicy        Kind = "policy"
	KindNotFound      Kind = "not_found"
	KindCancelled     Kind = "cancelled"
	KindUnknown       Kind = "unknown"
)

// Kinded is implemented by every error of the taxonomy.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf walks the wrap chain of err and reports the first taxonomy kind found.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// IsFatal reports whether err aborts the operation it occurred in.
// Field-level coercion and enum problems are recoverable.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case "", KindFieldCoercion, KindUnmappedEnum:
		return false
	}
	return true
}

// ConfigurationError reports an unusable setup: missing credentials, unknown
// content type, or a content type without an external resource.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Kind() Kind    { return KindConfiguration }

// UnsupportedContentType reports a content type that cannot be fetched.
func UnsupportedContentType(name string, err error) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf("unsupported content type %q", name), Err: err}
}

// TransportError carries a non-success response or a network failure from
// the ITSM service.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, truncate(e.Body, 512))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": transport failure"
}

func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Kind() Kind    { return KindTransport }

// PolicyError is returned when a write is attempted on a content type that
// does not allow it.
type PolicyError struct {
	ContentType string
	Operation   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("content type %s does not allow %s", e.ContentType, e.Operation)
}

func (e *PolicyError) Kind() Kind { return KindPolicy }

// NotFoundError is returned for unknown content types or missing records.
type NotFoundError struct {
	What string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.What, e.Name)
}

func (e *NotFoundError) Kind() Kind { return KindNotFound }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
