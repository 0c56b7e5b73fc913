// Package dag builds and walks the directed acyclic graph of one
// pipeline's tasks (spec.md §4.2, Design Note §9: "arena of TaskRun
// entries plus an index-based adjacency mapping").
package dag

import "github.com/Interactions-AI/odin/internal/domain"

// Node is one task in the graph: its declaration index, its expanded
// definition, successors (index-based), and remaining-predecessor count.
type Node struct {
	Index        int
	Def          domain.TaskDefinition
	Successors   []int
	Predecessors int
}

// Graph is the arena of Nodes for one pipeline, in declaration order.
type Graph struct {
	Nodes []*Node
	// byName maps task name -> index, for dependency resolution.
	byName map[string]int
}

// NodeByName looks up a node by its declared (unlabeled) task name.
func (g *Graph) NodeByName(name string) (*Node, bool) {
	idx, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.Nodes[idx], true
}

// ReadySet returns the indices of nodes with zero remaining predecessors,
// in declaration order (spec.md §4.2 tie-breaking rule).
func (g *Graph) ReadySet() []int {
	ready := []int{}
	for _, n := range g.Nodes {
		if n.Predecessors == 0 {
			ready = append(ready, n.Index)
		}
	}
	return ready
}

// Successors returns the node indices that depend directly on node idx.
func (g *Graph) Successors(idx int) []int {
	return g.Nodes[idx].Successors
}

// Descendants returns every node transitively depending on idx (used by
// the Executor to mark downstream tasks TERMINATED on a failure, I5 of
// the Executor's responsibilities in spec.md §4.6 point 5).
func (g *Graph) Descendants(idx int) []int {
	seen := map[int]bool{}
	var walk func(int)
	walk = func(i int) {
		for _, s := range g.Nodes[i].Successors {
			if seen[s] {
				continue
			}
			seen[s] = true
			walk(s)
		}
	}
	walk(idx)
	out := make([]int, 0, len(seen))
	for _, n := range g.Nodes {
		if seen[n.Index] {
			out = append(out, n.Index)
		}
	}
	return out
}
