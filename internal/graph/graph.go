// Package graph provides a small dependency graph used to order resource
// creation. A resource that references another resource's attribute is
// applied after it; destruction walks the same order in reverse.
package graph

import (
	"fmt"
	"sort"
)

// Graph is a directed acyclic graph of resource identifiers
type Graph struct {
	nodes map[string]struct{}
	deps  map[string]map[string]struct{} // node -> set of nodes it depends on
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		deps:  make(map[string]map[string]struct{}),
	}
}

// AddNode registers a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.deps[id] = make(map[string]struct{})
}

// AddDependency records that node depends on dep, i.e. dep must be
// applied before node. Both nodes must already exist.
func (g *Graph) AddDependency(node, dep string) error {
	if node == dep {
		return fmt.Errorf("self-referential dependency not allowed: %s", node)
	}
	if _, ok := g.nodes[node]; !ok {
		return fmt.Errorf("unknown node: %s", node)
	}
	if _, ok := g.nodes[dep]; !ok {
		return fmt.Errorf("unknown dependency: %s", dep)
	}
	g.deps[node][dep] = struct{}{}
	return nil
}

// ApplyOrder returns a deterministic topological ordering: dependencies
// first, ties broken lexically. Returns an error if the graph has a cycle.
func (g *Graph) ApplyOrder() ([]string, error) {
	remaining := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = len(g.deps[id])
		for dep := range g.deps[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, n := range remaining {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := false
		for _, dependent := range dependents[id] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for id, n := range remaining {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("dependency cycle involving: %v", stuck)
	}

	return order, nil
}

// DestroyOrder returns the apply order reversed
func (g *Graph) DestroyOrder() ([]string, error) {
	order, err := g.ApplyOrder()
	if err != nil {
		return nil, err
	}
	reversed := make([]string, len(order))
	for i, id := range order {
		reversed[len(order)-1-i] = id
	}
	return reversed, nil
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}
