// Package hierarchy provides the in-memory category tree used to organize
// extracted memory categories.
//
// The store exclusively owns its node tree: lookups return snapshot copies,
// never internal pointers, so readers cannot mutate the tree out from under
// the lock. Reads may proceed concurrently; mutations take the write lock
// and bump a monotonic generation counter that dependent caches key on, so
// a stale cache entry can never survive a mutation.
package hierarchy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/utils"
)

const (
	// DefaultMaxDepth bounds how deep a category chain may grow.
	DefaultMaxDepth = 5

	// DefaultCacheSize bounds the traversal result cache.
	DefaultCacheSize = 256
)

// PathSeparator joins ancestor names into a full path.
const PathSeparator = "/"

// Node is a snapshot of one category node. Children holds the names of
// direct children only; ask the store for their snapshots.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parent_id,omitempty"`
	Children []string `json:"children,omitempty"`
	Depth    int      `json:"depth"`
	FullPath string   `json:"full_path"`
}

// Config holds hierarchy store configuration.
type Config struct {
	// MaxDepth is the maximum allowed node depth (root = 0).
	MaxDepth int

	// CaseSensitive disables the default case-insensitive lookup.
	CaseSensitive bool

	// CacheSize bounds the traversal cache. Zero disables caching.
	CacheSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:  DefaultMaxDepth,
		CacheSize: DefaultCacheSize,
	}
}

// treeNode is the internal, tree-owned representation.
type treeNode struct {
	id       string
	name     string
	parent   *treeNode
	children map[string]*treeNode
	depth    int
	fullPath string
}

// Store is the in-memory category tree.
type Store struct {
	mu     sync.RWMutex
	config Config

	nodes map[string]*treeNode // keyed by normalized id
	roots map[string]*treeNode

	// generation increments on every mutation. Caches built against an
	// older generation are rejected rather than invalidated in place.
	generation uint64

	traversal *utils.LRU[string, []Node]
}

// NewStore creates an empty hierarchy store.
func NewStore(config Config) *Store {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}

	return &Store{
		config:    config,
		nodes:     make(map[string]*treeNode),
		roots:     make(map[string]*treeNode),
		traversal: utils.NewLRU[string, []Node](config.CacheSize),
	}
}

// normalize produces the lookup key for a name or path segment.
func (s *Store) normalize(name string) string {
	name = strings.TrimSpace(name)
	if s.config.CaseSensitive {
		return name
	}
	return strings.ToLower(name)
}

// AddCategory inserts a category under parentPath. An empty parentPath
// creates a root node. A parentPath naming a node that does not exist fails
// fast with InvalidParentError — intermediate nodes are never created
// implicitly. Exceeding the configured depth fails with DepthExceededError.
func (s *Store) AddCategory(name, parentPath string) (Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Node{}, fmt.Errorf("category name is required")
	}
	if strings.Contains(name, PathSeparator) {
		return Node{}, fmt.Errorf("category name %q may not contain %q", name, PathSeparator)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var parent *treeNode
	if parentPath != "" {
		parent = s.lookup(parentPath)
		if parent == nil {
			return Node{}, InvalidParentError{Path: parentPath}
		}
	}

	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	if depth >= s.config.MaxDepth {
		return Node{}, DepthExceededError{Name: name, Max: s.config.MaxDepth}
	}

	id := s.normalize(name)
	if existing, ok := s.nodes[id]; ok {
		// Idempotent re-add under the same parent.
		if (parent == nil && existing.parent == nil) || (parent != nil && existing.parent == parent) {
			return snapshot(existing), nil
		}
		return Node{}, fmt.Errorf("category %q already exists under a different parent", name)
	}

	n := &treeNode{
		id:       id,
		name:     name,
		parent:   parent,
		children: make(map[string]*treeNode),
		depth:    depth,
	}
	if parent == nil {
		n.fullPath = name
		s.roots[id] = n
	} else {
		n.fullPath = parent.fullPath + PathSeparator + name
		parent.children[id] = n
	}
	s.nodes[id] = n

	s.bump()
	return snapshot(n), nil
}

// RemoveCategory removes a category and its entire subtree.
func (s *Store) RemoveCategory(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.lookup(name)
	if n == nil {
		return NotFoundError{Name: name}
	}

	s.removeSubtree(n)
	if n.parent != nil {
		delete(n.parent.children, n.id)
	} else {
		delete(s.roots, n.id)
	}

	s.bump()
	return nil
}

func (s *Store) removeSubtree(n *treeNode) {
	for _, child := range n.children {
		s.removeSubtree(child)
	}
	delete(s.nodes, n.id)
}

// Node looks up a category by full path or bare name and returns its
// snapshot.
func (s *Store) Node(pathOrName string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.lookup(pathOrName)
	if n == nil {
		return Node{}, false
	}
	return snapshot(n), true
}

// lookup resolves a bare name or a slash path. Caller must hold the lock.
func (s *Store) lookup(pathOrName string) *treeNode {
	if !strings.Contains(pathOrName, PathSeparator) {
		return s.nodes[s.normalize(pathOrName)]
	}

	segments := strings.Split(pathOrName, PathSeparator)
	var cur *treeNode
	for i, seg := range segments {
		key := s.normalize(seg)
		if i == 0 {
			cur = s.roots[key]
		} else {
			cur = cur.children[key]
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Ancestors returns the ancestor chain of a category ordered root first,
// immediate parent last. A root category has no ancestors.
func (s *Store) Ancestors(name string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.lookup(name)
	if n == nil {
		return nil, NotFoundError{Name: name}
	}

	key := s.cacheKey("anc", n.id)
	if cached, ok := s.traversal.Get(key); ok {
		return cached, nil
	}

	var chain []Node
	for cur := n.parent; cur != nil; cur = cur.parent {
		chain = append([]Node{snapshot(cur)}, chain...)
	}

	s.traversal.Put(key, chain)
	return chain, nil
}

// Descendants returns every node below the category, in no particular
// order.
func (s *Store) Descendants(name string) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.lookup(name)
	if n == nil {
		return nil, NotFoundError{Name: name}
	}

	key := s.cacheKey("desc", n.id)
	if cached, ok := s.traversal.Get(key); ok {
		return cached, nil
	}

	var out []Node
	var walk func(*treeNode)
	walk = func(t *treeNode) {
		for _, child := range t.children {
			out = append(out, snapshot(child))
			walk(child)
		}
	}
	walk(n)

	s.traversal.Put(key, out)
	return out, nil
}

// IsDescendantOf reports whether a lies strictly below b in the tree.
func (s *Store) IsDescendantOf(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	na := s.lookup(a)
	nb := s.lookup(b)
	if na == nil || nb == nil {
		return false
	}

	for cur := na.parent; cur != nil; cur = cur.parent {
		if cur == nb {
			return true
		}
	}
	return false
}

// CommonAncestor returns the deepest node that is an ancestor of (or equal
// to) every named category. A single-element input returns that node
// itself. Returns false when the inputs share no common node.
func (s *Store) CommonAncestor(names []string) (Node, bool) {
	if len(names) == 0 {
		return Node{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	first := s.lookup(names[0])
	if first == nil {
		return Node{}, false
	}

	// Candidate set: the first node's self-inclusive ancestor chain.
	candidates := make([]*treeNode, 0, first.depth+1)
	for cur := first; cur != nil; cur = cur.parent {
		candidates = append(candidates, cur)
	}

	for _, name := range names[1:] {
		n := s.lookup(name)
		if n == nil {
			return Node{}, false
		}

		onChain := make(map[*treeNode]bool, n.depth+1)
		for cur := n; cur != nil; cur = cur.parent {
			onChain[cur] = true
		}

		filtered := candidates[:0]
		for _, c := range candidates {
			if onChain[c] {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
		if len(candidates) == 0 {
			return Node{}, false
		}
	}

	// Candidates are ordered deepest first.
	return snapshot(candidates[0]), true
}

// SearchCategories returns up to limit categories whose name or full path
// contains the substring, ordered by depth then name for determinism.
func (s *Store) SearchCategories(substring string, limit int) []Node {
	if limit <= 0 {
		limit = 10
	}
	needle := s.normalize(substring)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, n := range s.nodes {
		hay := n.name + " " + n.fullPath
		if !s.config.CaseSensitive {
			hay = strings.ToLower(hay)
		}
		if strings.Contains(hay, needle) {
			out = append(out, snapshot(n))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Name < out[j].Name
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Clear removes every category.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*treeNode)
	s.roots = make(map[string]*treeNode)
	s.bump()
}

// Len returns the number of categories in the tree.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

// Generation returns the current mutation counter. Dependent caches store
// the generation they were computed under and reject entries whose
// generation no longer matches.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation
}

// bump increments the generation. Caller must hold the write lock. The
// traversal cache is purged as well: generation-prefixed keys would miss
// anyway, purging just frees them eagerly.
func (s *Store) bump() {
	s.generation++
	s.traversal.Purge()
}

func (s *Store) cacheKey(kind, id string) string {
	return fmt.Sprintf("%s:%d:%s", kind, s.generation, id)
}

func snapshot(n *treeNode) Node {
	out := Node{
		ID:       n.id,
		Name:     n.name,
		Depth:    n.depth,
		FullPath: n.fullPath,
	}
	if n.parent != nil {
		out.ParentID = n.parent.id
	}
	if len(n.children) > 0 {
		out.Children = make([]string, 0, len(n.children))
		for _, child := range n.children {
			out.Children = append(out.Children, child.name)
		}
		sort.Strings(out.Children)
	}
	return out
}
