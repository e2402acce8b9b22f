package hierarchy

import "fmt"

// NotFoundError is returned when a named category doesn't exist in the tree.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return "category not found: " + e.Name
}

// InvalidParentError is returned by AddCategory when the parent path names
// a node that does not exist. Intermediate nodes are never auto-created.
type InvalidParentError struct {
	Path string
}

func (e InvalidParentError) Error() string {
	return "parent category not found: " + e.Path
}

// DepthExceededError is returned when an insertion would exceed the
// configured maximum depth.
type DepthExceededError struct {
	Name string
	Max  int
}

func (e DepthExceededError) Error() string {
	return fmt.Sprintf("category %q would exceed maximum depth %d", e.Name, e.Max)
}
