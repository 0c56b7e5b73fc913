package dag

import (
	"testing"

	"github.com/Interactions-AI/odin/internal/domain"
	odinerrors "github.com/Interactions-AI/odin/internal/domain/errors"
)

func task(name string, depends ...string) domain.TaskDefinition {
	return domain.TaskDefinition{Name: name, Depends: domain.DependsList(depends)}
}

func TestBuildReadySetIsDeclarationOrdered(t *testing.T) {
	// b and c both depend only on a; declared b, c (not c, b): the initial
	// ReadySet is just [a], and Successors(a), which decides who becomes
	// ready once a completes, must list b and c in declaration order
	// (spec.md S3/S4 tie-breaking rule).
	g, err := Build([]domain.TaskDefinition{
		task("a"),
		task("b", "a"),
		task("c", "a"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	initial := g.ReadySet()
	if len(initial) != 1 || g.Nodes[initial[0]].Def.Name != "a" {
		t.Fatalf("initial ready set = %v, want just [a]", namesOf(g, initial))
	}

	aNode, _ := g.NodeByName("a")
	succ := g.Successors(aNode.Index)
	if len(succ) != 2 || g.Nodes[succ[0]].Def.Name != "b" || g.Nodes[succ[1]].Def.Name != "c" {
		t.Fatalf("successors of a = %v, want [b c] in declaration order", namesOf(g, succ))
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	_, err := Build([]domain.TaskDefinition{
		task("a", "nonexistent"),
	})
	if !odinerrors.AsUnknownDependency(err) {
		t.Fatalf("Build() err = %v, want UnknownDependency", err)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	_, err := Build([]domain.TaskDefinition{
		task("a", "c"),
		task("b", "a"),
		task("c", "b"),
	})
	if !odinerrors.AsCycleDetected(err) {
		t.Fatalf("Build() err = %v, want CycleDetected", err)
	}
}

func TestBuildRejectsDuplicateTaskNames(t *testing.T) {
	_, err := Build([]domain.TaskDefinition{
		task("a"),
		task("a"),
	})
	if !odinerrors.AsValidationError(err) {
		t.Fatalf("Build() err = %v, want ValidationError", err)
	}
}

func TestDescendantsIncludesTransitiveSuccessors(t *testing.T) {
	g, err := Build([]domain.TaskDefinition{
		task("a"),
		task("b", "a"),
		task("c", "b"),
		task("d"), // unrelated branch
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	aNode, _ := g.NodeByName("a")
	desc := g.Descendants(aNode.Index)
	if len(desc) != 2 || g.Nodes[desc[0]].Def.Name != "b" || g.Nodes[desc[1]].Def.Name != "c" {
		t.Fatalf("Descendants(a) = %v, want [b c]", namesOf(g, desc))
	}
}

func namesOf(g *Graph, idxs []int) []string {
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Nodes[idx].Def.Name
	}
	return out
}
