package hierarchy

import (
	"fmt"
	"sort"
)

// ExportedNode is one category in an exported hierarchy, with its subtree
// nested under Children.
type ExportedNode struct {
	Name     string         `json:"name"`
	Children []ExportedNode `json:"children,omitempty"`
}

// Export captures the whole tree as a nested structure suitable for JSON
// or TOML serialization.
func (s *Store) Export() []ExportedNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exportSubtree func(n *treeNode) ExportedNode
	exportSubtree = func(n *treeNode) ExportedNode {
		out := ExportedNode{Name: n.name}
		for _, child := range sortedChildren(n) {
			out.Children = append(out.Children, exportSubtree(child))
		}
		return out
	}

	roots := make([]*treeNode, 0, len(s.roots))
	for _, r := range s.roots {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].name < roots[j].name })

	out := make([]ExportedNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, exportSubtree(r))
	}
	return out
}

// Import replaces the current tree with the exported structure. The import
// is validated against the configured depth limit; on error the store is
// left empty rather than partially imported.
func (s *Store) Import(nodes []ExportedNode) error {
	s.Clear()

	var insert func(n ExportedNode, parentPath string) error
	insert = func(n ExportedNode, parentPath string) error {
		added, err := s.AddCategory(n.Name, parentPath)
		if err != nil {
			return fmt.Errorf("import %q: %w", n.Name, err)
		}
		for _, child := range n.Children {
			if err := insert(child, added.FullPath); err != nil {
				return err
			}
		}
		return nil
	}

	for _, n := range nodes {
		if err := insert(n, ""); err != nil {
			s.Clear()
			return err
		}
	}
	return nil
}

// ValidationReport is the result of a structural consistency check.
type ValidationReport struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// Validate checks the structural invariants of the tree: depth arithmetic,
// full-path consistency with the parent chain, and absence of cycles.
func (s *Store) Validate() ValidationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []string

	for id, n := range s.nodes {
		// Cycle detection: walking parents from any node must terminate
		// within the node count.
		steps := 0
		for cur := n.parent; cur != nil; cur = cur.parent {
			steps++
			if cur == n {
				errs = append(errs, fmt.Sprintf("cycle detected through %q", n.name))
				break
			}
			if steps > len(s.nodes) {
				errs = append(errs, fmt.Sprintf("parent chain of %q does not terminate", n.name))
				break
			}
		}

		switch {
		case n.parent == nil:
			if n.depth != 0 {
				errs = append(errs, fmt.Sprintf("root %q has depth %d, want 0", n.name, n.depth))
			}
			if n.fullPath != n.name {
				errs = append(errs, fmt.Sprintf("root %q has path %q, want %q", n.name, n.fullPath, n.name))
			}
		default:
			if n.depth != n.parent.depth+1 {
				errs = append(errs, fmt.Sprintf("node %q has depth %d, parent depth is %d", n.name, n.depth, n.parent.depth))
			}
			want := n.parent.fullPath + PathSeparator + n.name
			if n.fullPath != want {
				errs = append(errs, fmt.Sprintf("node %q has path %q, want %q", n.name, n.fullPath, want))
			}
			if n.parent.children[id] != n {
				errs = append(errs, fmt.Sprintf("node %q is not linked from its parent %q", n.name, n.parent.name))
			}
		}

		if n.depth >= s.config.MaxDepth {
			errs = append(errs, fmt.Sprintf("node %q exceeds maximum depth %d", n.name, s.config.MaxDepth))
		}
	}

	return ValidationReport{IsValid: len(errs) == 0, Errors: errs}
}

func sortedChildren(n *treeNode) []*treeNode {
	out := make([]*treeNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
