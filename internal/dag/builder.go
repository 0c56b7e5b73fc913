package dag

import (
	"github.com/Interactions-AI/odin/internal/domain"
	odinerrors "github.com/Interactions-AI/odin/internal/domain/errors"
)

// Build assembles a Graph from a pipeline's task definitions, resolving
// each `depends` reference by name and detecting cycles (spec.md §4.2).
// Grounded on original_source/odin/dag.py's topo_sort_kahn: a Kahn
// in-degree count is used both to validate acyclicity up front and, via
// Node.Predecessors, to drive the Executor's incremental ready-set
// computation later.
func Build(tasks []domain.TaskDefinition) (*Graph, error) {
	g := &Graph{
		Nodes:  make([]*Node, len(tasks)),
		byName: make(map[string]int, len(tasks)),
	}

	for i, def := range tasks {
		if _, dup := g.byName[def.Name]; dup {
			return nil, odinerrors.NewValidationError("duplicate task name: " + def.Name)
		}
		g.byName[def.Name] = i
		g.Nodes[i] = &Node{Index: i, Def: def}
	}

	for _, n := range g.Nodes {
		for _, dep := range n.Def.Depends {
			depIdx, ok := g.byName[dep]
			if !ok {
				return nil, odinerrors.NewUnknownDependency(n.Def.Name, dep)
			}
			g.Nodes[depIdx].Successors = append(g.Nodes[depIdx].Successors, n.Index)
			n.Predecessors++
		}
	}

	if err := checkAcyclic(g); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic runs Kahn's algorithm over a scratch copy of the
// in-degree counts and reports the first node that never reaches
// zero in-degree as the offending CycleDetected node, matching
// dag.py's CycleError behavior of naming one node caught in the cycle.
func checkAcyclic(g *Graph) error {
	remaining := make([]int, len(g.Nodes))
	for i, n := range g.Nodes {
		remaining[i] = n.Predecessors
	}

	queue := make([]int, 0, len(g.Nodes))
	for i, r := range remaining {
		if r == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		visited++
		for _, s := range g.Nodes[idx].Successors {
			remaining[s]--
			if remaining[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if visited < len(g.Nodes) {
		for i, r := range remaining {
			if r > 0 {
				return odinerrors.NewCycleDetected(g.Nodes[i].Def.Name)
			}
		}
	}
	return nil
}
