// Package elements defines read-only views of state hierarchies, used by
// renderers that must not depend on the runtime package.
package elements

import "github.com/stateforward/qhsm.go/kind"

// Element is anything with a name and a kind.
type Element interface {
	Name() string
	Kind() kind.Kind
}

// Vertex is a node of a state hierarchy.
type Vertex interface {
	Element
	// Owner returns the enclosing vertex, nil for a root.
	Owner() Vertex
}

// Path returns the names from the root down to v, v included.
func Path(v Vertex) []string {
	var names []string
	for ; v != nil; v = v.Owner() {
		names = append([]string{v.Name()}, names...)
	}
	return names
}

// Depth returns the number of owners above v.
func Depth(v Vertex) int {
	depth := 0
	for v = v.Owner(); v != nil; v = v.Owner() {
		depth++
	}
	return depth
}
