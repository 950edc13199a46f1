package engine

import (
	"fmt"
	"io"

	"github.com/picklr-io/reportchain/pkg/resource"
)

// Graph is the dependency graph of an ordered spec sequence. The sequence itself is
// the creation order, so every dependency must appear before its dependent.
type Graph struct {
	nodes    map[string]*graphNode
	order    []string // creation order (spec names)
	revOrder []string // destruction order
}

type graphNode struct {
	spec  resource.Spec
	edges []string // specs this node depends on
}

// BuildGraph validates specs and records their dependencies. Dependencies come from
// explicit DependsOn entries and from ref:// placeholders. A dependency on an
// unknown or later spec is a validation error.
func BuildGraph(specs []resource.Spec) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(specs))}

	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("spec %d: %w", i+1, err)
		}
		if _, dup := g.nodes[spec.Name]; dup {
			return nil, resource.Validationf("duplicate resource name %q", spec.Name)
		}

		node := &graphNode{spec: spec}
		seen := make(map[string]bool)
		addEdge := func(dep string) error {
			if seen[dep] {
				return nil
			}
			if _, ok := g.nodes[dep]; !ok {
				return resource.Validationf("%s depends on %q which is not declared before it", spec.Address(), dep)
			}
			seen[dep] = true
			node.edges = append(node.edges, dep)
			return nil
		}

		for _, dep := range spec.DependsOn {
			if err := addEdge(dep); err != nil {
				return nil, err
			}
		}
		for _, ref := range extractRefs(spec) {
			if err := addEdge(ref.name); err != nil {
				return nil, err
			}
		}

		g.nodes[spec.Name] = node
		g.order = append(g.order, spec.Name)
	}

	g.revOrder = make([]string, len(g.order))
	for i, name := range g.order {
		g.revOrder[len(g.order)-1-i] = name
	}

	return g, nil
}

// CreationOrder returns spec names in creation order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns spec names in reverse creation order.
func (g *Graph) DestructionOrder() []string {
	return g.revOrder
}

// Dependencies returns the names a spec depends on.
func (g *Graph) Dependencies(name string) []string {
	if node, ok := g.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// WriteDOT writes the graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph reportchain {\n  rankdir = \"BT\";\n  node [shape = rect];"); err != nil {
		return err
	}
	for _, name := range g.order {
		if _, err := fmt.Fprintf(w, "  %q;\n", g.nodes[name].spec.Address()); err != nil {
			return err
		}
	}
	for _, name := range g.order {
		node := g.nodes[name]
		for _, dep := range node.edges {
			if _, err := fmt.Fprintf(w, "  %q -> %q;\n", node.spec.Address(), g.nodes[dep].spec.Address()); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
