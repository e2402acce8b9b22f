package extract

import "github.com/papercomputeco/mnemo/pkg/hierarchy"

// RefKind tags how a category resolved against the hierarchy.
type RefKind int

const (
	// RefNone means the category carries no hierarchy information.
	RefNone RefKind = iota

	// RefPersisted points at a node that exists in the hierarchy store.
	RefPersisted

	// RefVirtual is a node synthesized for this result only. Virtual
	// nodes are local values — they are never inserted into the store,
	// and mutating one has no effect on the persisted tree.
	RefVirtual
)

// NodeRef is the tagged resolution of a category against the hierarchy:
// either a snapshot of a persisted node or a locally owned virtual node.
type NodeRef struct {
	kind RefKind
	node hierarchy.Node
}

// PersistedRef wraps a snapshot of a node that exists in the store.
func PersistedRef(n hierarchy.Node) NodeRef {
	return NodeRef{kind: RefPersisted, node: n}
}

// VirtualRef synthesizes a root-level virtual node for a category the tree
// doesn't know. The path defaults to the name when empty.
func VirtualRef(name, path string) NodeRef {
	if path == "" {
		path = name
	}
	return NodeRef{
		kind: RefVirtual,
		node: hierarchy.Node{
			ID:       name,
			Name:     name,
			Depth:    0,
			FullPath: path,
		},
	}
}

// Kind returns the resolution tag.
func (r NodeRef) Kind() RefKind { return r.kind }

// IsVirtual reports whether the node was synthesized rather than found.
func (r NodeRef) IsVirtual() bool { return r.kind == RefVirtual }

// Path returns the full hierarchy path, or "" for an unresolved ref.
func (r NodeRef) Path() string {
	if r.kind == RefNone {
		return ""
	}
	return r.node.FullPath
}

// Depth returns the node depth; virtual and unresolved refs are depth 0.
func (r NodeRef) Depth() int {
	return r.node.Depth
}
