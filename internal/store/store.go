// Package store defines the Jobs Store contract (spec.md §4.8): a
// key/value-like interface over a relational or document backend,
// exposing create, update, fetch-by-label, search-by-substring, delete,
// and an atomic update-by-label so status transitions do not race.
package store

import (
	"context"

	"github.com/Interactions-AI/odin/internal/domain"
)

// Backend names the two JobsStore implementations this repository
// carries (SPEC_FULL.md §11.4: sqlite stands in for the spec's "mongo"
// alternative since no Mongo driver exists anywhere in the example
// corpus).
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// UpdateTaskFunc computes a TaskRun's next state from its current
// stored state, for AtomicUpdateTaskRun.
type UpdateTaskFunc func(current domain.TaskRun) (domain.TaskRun, error)

// JobsStore is the durable authority for all run state (spec.md §4.8,
// §5: "the single durable authority"). Implementations must survive
// process restarts.
type JobsStore interface {
	CreatePipelineRun(ctx context.Context, run domain.PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run domain.PipelineRun) error
	GetPipelineRun(ctx context.Context, label string) (domain.PipelineRun, error)
	SearchPipelineRunsByLabelSubstring(ctx context.Context, substr string) ([]domain.PipelineRun, error)
	ListNonTerminalPipelineRuns(ctx context.Context) ([]domain.PipelineRun, error)
	DeletePipelineRun(ctx context.Context, label string) error

	CreateTaskRun(ctx context.Context, task domain.TaskRun) error
	GetTaskRun(ctx context.Context, label string) (domain.TaskRun, error)
	ListTaskRunsByParent(ctx context.Context, parentLabel string) ([]domain.TaskRun, error)

	// AtomicUpdateTaskRun reads the TaskRun at label, applies fn, and
	// writes the result back as a single atomic operation so that two
	// concurrent status transitions on the same TaskRun cannot race
	// (spec.md §4.8, grounded on opst-knitfab's RunInterface.PickAndSetStatus
	// cursor-based atomic update).
	AtomicUpdateTaskRun(ctx context.Context, label string, fn UpdateTaskFunc) (domain.TaskRun, error)

	Close() error
}
