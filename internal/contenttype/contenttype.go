// Package contenttype holds the hierarchy of record kinds the connector knows
// about. Types form a forest: each type has at most one parent, and ancestry
// decides which field mappings and join passes apply to it.
//
// A Registry is assembled with a Builder and is immutable once built, so it
// can be shared by concurrent fetch operations without locking.
package contenttype

import "strings"

// ContentType is one node of the hierarchy.
type ContentType struct {
	Name string
	// ExternalResourceName is the table or API collection backing the type.
	// Empty means the type cannot be fetched directly.
	ExternalResourceName string
	Creatable            bool
	Modifiable           bool

	parent   *ContentType
	children []*ContentType
	index    map[string]*ContentType
}

// Parent returns the parent type, or nil for a root.
func (c *ContentType) Parent() *ContentType { return c.parent }

// Children returns the direct children in registration order.
func (c *ContentType) Children() []*ContentType {
	out := make([]*ContentType, len(c.children))
	copy(out, c.children)
	return out
}

// Child returns the direct child with the given name.
func (c *ContentType) Child(name string) (*ContentType, bool) {
	ch, ok := c.index[key(name)]
	return ch, ok
}

// Root returns the root of the tree c belongs to.
func (c *ContentType) Root() *ContentType {
	cur := c
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// HasAncestor reports whether c or any of its ancestors is named name.
func (c *ContentType) HasAncestor(name string) bool {
	k := key(name)
	for cur := c; cur != nil; cur = cur.parent {
		if key(cur.Name) == k {
			return true
		}
	}
	return false
}

// Ancestors returns the chain from the root down to c, c included.
func (c *ContentType) Ancestors() []*ContentType {
	var chain []*ContentType
	for cur := c; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Path returns the slash separated names from the root, e.g. "Ticket/Incident".
func (c *ContentType) Path() string {
	chain := c.Ancestors()
	names := make([]string, len(chain))
	for i, ct := range chain {
		names[i] = ct.Name
	}
	return strings.Join(names, "/")
}

// Is reports whether c has the given name, ignoring case.
func (c *ContentType) Is(name string) bool { return key(c.Name) == key(name) }

func (c *ContentType) String() string { return c.Name }

// find searches the subtree rooted at c.
func (c *ContentType) find(k string) *ContentType {
	if key(c.Name) == k {
		return c
	}
	for _, ch := range c.children {
		if found := ch.find(k); found != nil {
			return found
		}
	}
	return nil
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
