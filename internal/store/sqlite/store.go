// Package sqlite implements the Jobs Store (spec.md §4.8) against an
// embedded SQLite database, grounded on
// 3cpo-dev-gaxx/internal/core/store.go's database/sql + modernc.org/sqlite
// + go:embed migration pattern. It stands in for the spec's "mongo"
// alternative backend (SPEC_FULL.md §11.4).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is a SQLite-backed JobsStore.
type Store struct {
	db *sql.DB
}

var _ store.JobsStore = (*Store)(nil)

// New opens (creating if necessary) the database at path and applies
// migrations. path may be ":memory:" for ephemeral test databases
// (SPEC_FULL.md §10.5).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers across connections

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreatePipelineRun(ctx context.Context, run domain.PipelineRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs
			(label, job_name, version, parent, waiting, executing, executed, errored,
			 terminated, status, submit_time, completion_time, error_message, tasks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Label, run.Job, run.Version, run.Parent,
		store.EncodeJSON(run.Waiting), store.EncodeJSON(run.Executing),
		store.EncodeJSON(run.Executed), store.EncodeJSON(run.Errored),
		store.EncodeJSON(run.Terminated), string(run.Status),
		store.FormatTime(&run.SubmitTime), store.FormatTime(run.CompletionTime),
		run.ErrorMessage, store.EncodeJSON(run.Tasks),
	)
	if isUniqueViolation(err) {
		return store.NewConflict(run.Label)
	}
	return err
}

func (s *Store) UpdatePipelineRun(ctx context.Context, run domain.PipelineRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET
			version = ?, parent = ?, waiting = ?, executing = ?, executed = ?,
			errored = ?, terminated = ?, status = ?, completion_time = ?, error_message = ?
		WHERE label = ?`,
		run.Version, run.Parent, store.EncodeJSON(run.Waiting), store.EncodeJSON(run.Executing),
		store.EncodeJSON(run.Executed), store.EncodeJSON(run.Errored), store.EncodeJSON(run.Terminated),
		string(run.Status), store.FormatTime(run.CompletionTime), run.ErrorMessage, run.Label,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, run.Label)
}

func (s *Store) GetPipelineRun(ctx context.Context, label string) (domain.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT label, job_name, version, parent, waiting, executing, executed, errored,
		       terminated, status, submit_time, completion_time, error_message, tasks
		FROM pipeline_runs WHERE label = ?`, label)
	run, err := scanPipelineRun(row)
	if err == sql.ErrNoRows {
		return domain.PipelineRun{}, store.NewMissing(label)
	}
	return run, err
}

func (s *Store) SearchPipelineRunsByLabelSubstring(ctx context.Context, substr string) ([]domain.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, job_name, version, parent, waiting, executing, executed, errored,
		       terminated, status, submit_time, completion_time, error_message, tasks
		FROM pipeline_runs WHERE label LIKE ? ORDER BY label`, "%"+substr+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPipelineRuns(rows)
}

func (s *Store) ListNonTerminalPipelineRuns(ctx context.Context) ([]domain.PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, job_name, version, parent, waiting, executing, executed, errored,
		       terminated, status, submit_time, completion_time, error_message, tasks
		FROM pipeline_runs
		WHERE status NOT IN (?, ?, ?) ORDER BY submit_time`,
		string(domain.PipelineDone), string(domain.PipelineFailed), string(domain.PipelineTerminated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPipelineRuns(rows)
}

func (s *Store) DeletePipelineRun(ctx context.Context, label string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_runs WHERE parent = ?`, label); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE label = ?`, label)
	if err != nil {
		return err
	}
	return requireOneRow(res, label)
}

func (s *Store) CreateTaskRun(ctx context.Context, task domain.TaskRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_runs
			(label, parent, name, command, args, image, resource_type, resource_id,
			 node_selector, pull_policy, num_gpus, num_workers, mounts, secrets, config_maps,
			 depends, status, submit_time, completion_time, updated_at, exit_code, exit_message,
			 requests_early_exit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Label, task.Parent, task.Name, store.EncodeJSON(task.Command), store.EncodeJSON(task.Args),
		task.Image, string(task.ResourceType), task.ResourceID, store.EncodeJSON(task.NodeSelector),
		task.PullPolicy, task.NumGPUs, task.NumWorkers, store.EncodeJSON(task.Mounts),
		store.EncodeJSON(task.Secrets), store.EncodeJSON(task.ConfigMaps), store.EncodeJSON(task.Depends),
		string(task.Status), store.FormatTime(task.SubmitTime), store.FormatTime(task.CompletionTime),
		store.FormatTime(&task.UpdatedAt), exitCode(task.Exit), exitMessage(task.Exit), task.RequestsEarlyExit,
	)
	if isUniqueViolation(err) {
		return store.NewConflict(task.Label)
	}
	return err
}

func (s *Store) GetTaskRun(ctx context.Context, label string) (domain.TaskRun, error) {
	row := s.db.QueryRowContext(ctx, taskRunSelect+` WHERE label = ?`, label)
	task, err := scanTaskRun(row)
	if err == sql.ErrNoRows {
		return domain.TaskRun{}, store.NewMissing(label)
	}
	return task, err
}

func (s *Store) ListTaskRunsByParent(ctx context.Context, parentLabel string) ([]domain.TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, taskRunSelectRows+` WHERE parent = ? ORDER BY label`, parentLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTaskRuns(rows)
}

// AtomicUpdateTaskRun runs fn inside a single SQLite transaction so the
// read-modify-write of a status transition cannot interleave with
// another writer (spec.md §4.8). SQLite's single-writer model combined
// with this package's SetMaxOpenConns(1) makes the transaction itself
// sufficient; no extra row-level locking is required.
func (s *Store) AtomicUpdateTaskRun(ctx context.Context, label string, fn store.UpdateTaskFunc) (domain.TaskRun, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskRun{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, taskRunSelect+` WHERE label = ?`, label)
	current, err := scanTaskRun(row)
	if err == sql.ErrNoRows {
		return domain.TaskRun{}, store.NewMissing(label)
	}
	if err != nil {
		return domain.TaskRun{}, err
	}

	next, err := fn(current)
	if err != nil {
		return domain.TaskRun{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE task_runs SET
			resource_id = ?, status = ?, submit_time = ?, completion_time = ?,
			updated_at = ?, exit_code = ?, exit_message = ?, args = ?
		WHERE label = ?`,
		next.ResourceID, string(next.Status), store.FormatTime(next.SubmitTime),
		store.FormatTime(next.CompletionTime), store.FormatTime(&next.UpdatedAt),
		exitCode(next.Exit), exitMessage(next.Exit), store.EncodeJSON(next.Args), label,
	); err != nil {
		return domain.TaskRun{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.TaskRun{}, err
	}
	return next, nil
}

func requireOneRow(res sql.Result, label string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.NewMissing(label)
	}
	return nil
}

func exitCode(exit *domain.RunExit) any {
	if exit == nil {
		return nil
	}
	return exit.Code
}

func exitMessage(exit *domain.RunExit) any {
	if exit == nil {
		return nil
	}
	return exit.Message
}

func isUniqueViolation(err error) bool {
	return err != nil && (containsFold(err.Error(), "unique") || containsFold(err.Error(), "constraint"))
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
