// Package plantuml renders state hierarchies as PlantUML state diagrams.
package plantuml

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/stateforward/qhsm.go/elements"
)

// Transition is an edge of a diagram.
type Transition struct {
	Source elements.Vertex
	Target elements.Vertex
	Label  string
}

// Diagram is what Generate renders. States whose owner is not itself listed
// are drawn at the top level.
type Diagram struct {
	Name        string
	States      []elements.Vertex
	Initial     elements.Vertex
	Transitions []Transition
}

func id(v elements.Vertex) string {
	replacer := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	path := elements.Path(v)
	for i, name := range path {
		path[i] = replacer.Replace(name)
	}
	return strings.Join(path, ".")
}

func generateState(builder *strings.Builder, depth int, state elements.Vertex, children map[elements.Vertex][]elements.Vertex) {
	indent := strings.Repeat(" ", depth*2)
	nested := children[state]
	if len(nested) == 0 {
		fmt.Fprintf(builder, "%sstate %s\n", indent, id(state))
		return
	}
	fmt.Fprintf(builder, "%sstate %s {\n", indent, id(state))
	for _, child := range nested {
		generateState(builder, depth+1, child, children)
	}
	fmt.Fprintf(builder, "%s}\n", indent)
}

func generateTransition(builder *strings.Builder, transition Transition) {
	source := "[*]"
	if transition.Source != nil {
		source = id(transition.Source)
	}
	label := ""
	if transition.Label != "" {
		label = " : " + transition.Label
	}
	fmt.Fprintf(builder, "%s --> %s%s\n", source, id(transition.Target), label)
}

// Generate writes diagram to writer.
func Generate(writer io.Writer, diagram Diagram) error {
	listed := make(map[elements.Vertex]bool, len(diagram.States))
	for _, state := range diagram.States {
		listed[state] = true
	}
	children := make(map[elements.Vertex][]elements.Vertex)
	var roots []elements.Vertex
	for _, state := range diagram.States {
		if owner := state.Owner(); owner != nil && listed[owner] {
			children[owner] = append(children[owner], state)
		} else {
			roots = append(roots, state)
		}
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", diagram.Name)
	for _, root := range roots {
		generateState(&builder, 1, root, children)
	}
	if diagram.Initial != nil {
		generateTransition(&builder, Transition{Target: diagram.Initial})
	}
	for _, transition := range diagram.Transitions {
		if transition.Target == nil {
			return errors.Newf("plantuml: transition from %s has no target", elements.Path(transition.Source))
		}
		generateTransition(&builder, transition)
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
