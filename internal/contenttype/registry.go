package contenttype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nucleus/itsm-core/internal/core"
)

// DuplicateNameError is returned when a name is already used in the tree the
// type would join.
type DuplicateNameError struct {
	Name string
	Tree string
}

func (e *DuplicateNameError) Error() string {
	if e.Tree == "" {
		return fmt.Sprintf("content type %q already registered as a root", e.Name)
	}
	return fmt.Sprintf("content type %q already registered in tree %q", e.Name, e.Tree)
}

func (e *DuplicateNameError) Kind() core.Kind { return core.KindConfiguration }

// UnknownParentError is returned when the named parent does not exist.
type UnknownParentError struct {
	Name   string
	Parent string
}

func (e *UnknownParentError) Error() string {
	return fmt.Sprintf("content type %q: unknown parent %q", e.Name, e.Parent)
}

func (e *UnknownParentError) Kind() core.Kind { return core.KindConfiguration }

// NotFoundError is returned by Resolve for unknown names.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("content type %q not found", e.Name)
}

func (e *NotFoundError) Kind() core.Kind { return core.KindNotFound }

var errBuilt = errors.New("registry already built")

// Builder assembles a Registry. It is not safe for concurrent use.
type Builder struct {
	roots []*ContentType
	built bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Register adds ct under the type named parentName, or as a new root when
// parentName is empty. The parent is the first type of that name in
// registration order. Only the exported fields of ct are used.
func (b *Builder) Register(ct ContentType, parentName string) error {
	var parent *ContentType
	if parentName != "" {
		if parent = b.lookup(parentName); parent == nil {
			return &UnknownParentError{Name: ct.Name, Parent: parentName}
		}
	}
	_, err := b.RegisterUnder(ct, parent)
	return err
}

// RegisterUnder adds ct under parent, a type returned by an earlier call on
// the same builder, or as a new root when parent is nil. It returns the
// registered node.
func (b *Builder) RegisterUnder(ct ContentType, parent *ContentType) (*ContentType, error) {
	if b.built {
		return nil, errBuilt
	}
	if key(ct.Name) == "" {
		return nil, fmt.Errorf("content type name is required")
	}
	node := &ContentType{
		Name:                 ct.Name,
		ExternalResourceName: ct.ExternalResourceName,
		Creatable:            ct.Creatable,
		Modifiable:           ct.Modifiable,
		index:                map[string]*ContentType{},
	}

	if parent == nil {
		for _, r := range b.roots {
			if r.Is(ct.Name) {
				return nil, &DuplicateNameError{Name: ct.Name}
			}
		}
		b.roots = append(b.roots, node)
		return node, nil
	}

	root := parent.Root()
	if !b.owns(root) {
		return nil, &UnknownParentError{Name: ct.Name, Parent: parent.Name}
	}
	if root.find(key(ct.Name)) != nil {
		return nil, &DuplicateNameError{Name: ct.Name, Tree: root.Name}
	}
	node.parent = parent
	parent.children = append(parent.children, node)
	parent.index[key(ct.Name)] = node
	return node, nil
}

// MustRegister is Register for static trees.
func (b *Builder) MustRegister(ct ContentType, parentName string) *Builder {
	if err := b.Register(ct, parentName); err != nil {
		panic(err)
	}
	return b
}

// Build freezes the builder and returns the registry.
func (b *Builder) Build() *Registry {
	b.built = true
	roots := make([]*ContentType, len(b.roots))
	copy(roots, b.roots)
	return &Registry{roots: roots}
}

func (b *Builder) owns(root *ContentType) bool {
	for _, r := range b.roots {
		if r == root {
			return true
		}
	}
	return false
}

func (b *Builder) lookup(name string) *ContentType {
	k := key(name)
	for _, r := range b.roots {
		if found := r.find(k); found != nil {
			return found
		}
	}
	return nil
}

// Registry is an immutable forest of content types.
type Registry struct {
	roots []*ContentType
}

// Resolve finds a type by name, ignoring case. Roots are searched in
// registration order. A name containing a slash is a path as returned by
// Path and selects one tree.
func (r *Registry) Resolve(name string) (*ContentType, error) {
	if strings.Contains(name, "/") {
		return r.resolvePath(name)
	}
	k := key(name)
	for _, root := range r.roots {
		if found := root.find(k); found != nil {
			return found, nil
		}
	}
	return nil, &NotFoundError{Name: name}
}

// resolvePath follows a slash separated path such as "Ticket/Incident" from
// a root down through direct children.
func (r *Registry) resolvePath(path string) (*ContentType, error) {
	parts := strings.Split(path, "/")
	var cur *ContentType
	for _, root := range r.roots {
		if root.Is(parts[0]) {
			cur = root
			break
		}
	}
	for _, part := range parts[1:] {
		if cur == nil {
			break
		}
		cur, _ = cur.Child(part)
	}
	if cur == nil {
		return nil, &NotFoundError{Name: path}
	}
	return cur, nil
}

// Roots returns the root types in registration order.
func (r *Registry) Roots() []*ContentType {
	out := make([]*ContentType, len(r.roots))
	copy(out, r.roots)
	return out
}

// Walk visits every type depth first, parents before children.
func (r *Registry) Walk(fn func(ct *ContentType) bool) {
	var visit func(ct *ContentType) bool
	visit = func(ct *ContentType) bool {
		if !fn(ct) {
			return false
		}
		for _, ch := range ct.children {
			if !visit(ch) {
				return false
			}
		}
		return true
	}
	for _, root := range r.roots {
		if !visit(root) {
			return
		}
	}
}

// HasAncestor resolves typeName and reports whether it descends from
// ancestorName, itself included. Unknown types have no ancestors.
func (r *Registry) HasAncestor(typeName, ancestorName string) bool {
	ct, err := r.Resolve(typeName)
	if err != nil {
		return false
	}
	return ct.HasAncestor(ancestorName)
}
