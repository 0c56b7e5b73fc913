// Package postgres implements the Jobs Store (spec.md §4.8) against
// PostgreSQL via pgxpool, grounded on
// opst-knitfab/pkg/domain/knitfab/db/postgres/postgres.go's
// pgxpool.Connect(ctx, url) connection pattern. This is the spec's
// primary backend (SPEC_FULL.md §11.4); the embedded SQLite backend in
// this module's sibling `sqlite` package is the swappable alternative.
package postgres

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/store"
)

//go:embed migrations/0001_init.sql
var migration string

// Store is a PostgreSQL-backed JobsStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.JobsStore = (*Store)(nil)

// New connects to url and applies the schema migration.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, migration); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreatePipelineRun(ctx context.Context, run domain.PipelineRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs
			(label, job_name, version, parent, waiting, executing, executed, errored,
			 terminated, status, submit_time, completion_time, error_message, tasks)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8::jsonb, $9::jsonb,
		        $10, $11, $12, $13, $14::jsonb)`,
		run.Label, run.Job, run.Version, run.Parent,
		store.EncodeJSON(run.Waiting), store.EncodeJSON(run.Executing),
		store.EncodeJSON(run.Executed), store.EncodeJSON(run.Errored),
		store.EncodeJSON(run.Terminated), string(run.Status),
		run.SubmitTime, run.CompletionTime, run.ErrorMessage, store.EncodeJSON(run.Tasks),
	)
	return translateWriteErr(err, run.Label)
}

func (s *Store) UpdatePipelineRun(ctx context.Context, run domain.PipelineRun) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET
			version = $1, parent = $2, waiting = $3::jsonb, executing = $4::jsonb,
			executed = $5::jsonb, errored = $6::jsonb, terminated = $7::jsonb,
			status = $8, completion_time = $9, error_message = $10
		WHERE label = $11`,
		run.Version, run.Parent, store.EncodeJSON(run.Waiting), store.EncodeJSON(run.Executing),
		store.EncodeJSON(run.Executed), store.EncodeJSON(run.Errored), store.EncodeJSON(run.Terminated),
		string(run.Status), run.CompletionTime, run.ErrorMessage, run.Label,
	)
	if err != nil {
		return err
	}
	return requireOneRow(tag, run.Label)
}

func (s *Store) GetPipelineRun(ctx context.Context, label string) (domain.PipelineRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT label, job_name, version, parent, waiting, executing, executed, errored,
		       terminated, status, submit_time, completion_time, error_message, tasks
		FROM pipeline_runs WHERE label = $1`, label)
	run, err := scanPipelineRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PipelineRun{}, store.NewMissing(label)
	}
	return run, err
}

func (s *Store) SearchPipelineRunsByLabelSubstring(ctx context.Context, substr string) ([]domain.PipelineRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT label, job_name, version, parent, waiting, executing, executed, errored,
		       terminated, status, submit_time, completion_time, error_message, tasks
		FROM pipeline_runs WHERE label LIKE $1 ORDER BY label`, "%"+substr+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPipelineRuns(rows)
}

func (s *Store) ListNonTerminalPipelineRuns(ctx context.Context) ([]domain.PipelineRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT label, job_name, version, parent, waiting, executing, executed, errored,
		       terminated, status, submit_time, completion_time, error_message, tasks
		FROM pipeline_runs
		WHERE status NOT IN ($1, $2, $3) ORDER BY submit_time`,
		string(domain.PipelineDone), string(domain.PipelineFailed), string(domain.PipelineTerminated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPipelineRuns(rows)
}

func (s *Store) DeletePipelineRun(ctx context.Context, label string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM task_runs WHERE parent = $1`, label); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM pipeline_runs WHERE label = $1`, label)
	if err != nil {
		return err
	}
	if err := requireOneRow(tag, label); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateTaskRun(ctx context.Context, task domain.TaskRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_runs
			(label, parent, name, command, args, image, resource_type, resource_id,
			 node_selector, pull_policy, num_gpus, num_workers, mounts, secrets, config_maps,
			 depends, status, submit_time, completion_time, updated_at, exit_code, exit_message,
			 requests_early_exit)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9::jsonb, $10, $11, $12,
		        $13::jsonb, $14::jsonb, $15::jsonb, $16::jsonb, $17, $18, $19, $20, $21, $22, $23)`,
		task.Label, task.Parent, task.Name, store.EncodeJSON(task.Command), store.EncodeJSON(task.Args),
		task.Image, string(task.ResourceType), task.ResourceID, store.EncodeJSON(task.NodeSelector),
		task.PullPolicy, task.NumGPUs, task.NumWorkers, store.EncodeJSON(task.Mounts),
		store.EncodeJSON(task.Secrets), store.EncodeJSON(task.ConfigMaps), store.EncodeJSON(task.Depends),
		string(task.Status), task.SubmitTime, task.CompletionTime, task.UpdatedAt,
		exitCode(task.Exit), exitMessage(task.Exit), task.RequestsEarlyExit,
	)
	return translateWriteErr(err, task.Label)
}

func (s *Store) GetTaskRun(ctx context.Context, label string) (domain.TaskRun, error) {
	row := s.pool.QueryRow(ctx, taskRunSelect+` WHERE label = $1`, label)
	task, err := scanTaskRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TaskRun{}, store.NewMissing(label)
	}
	return task, err
}

func (s *Store) ListTaskRunsByParent(ctx context.Context, parentLabel string) ([]domain.TaskRun, error) {
	rows, err := s.pool.Query(ctx, taskRunSelect+` WHERE parent = $1 ORDER BY label`, parentLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTaskRuns(rows)
}

// AtomicUpdateTaskRun mirrors the sqlite implementation's transaction
// shape, grounded the same way on opst-knitfab's PickAndSetStatus
// read-apply-write pattern, using Postgres row-level locking
// (SELECT ... FOR UPDATE) in place of sqlite's single-writer connection
// to keep concurrent updates to the same row from racing.
func (s *Store) AtomicUpdateTaskRun(ctx context.Context, label string, fn store.UpdateTaskFunc) (domain.TaskRun, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.TaskRun{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, taskRunSelect+` WHERE label = $1 FOR UPDATE`, label)
	current, err := scanTaskRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TaskRun{}, store.NewMissing(label)
	}
	if err != nil {
		return domain.TaskRun{}, err
	}

	next, err := fn(current)
	if err != nil {
		return domain.TaskRun{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE task_runs SET
			resource_id = $1, status = $2, submit_time = $3, completion_time = $4,
			updated_at = $5, exit_code = $6, exit_message = $7, args = $8::jsonb
		WHERE label = $9`,
		next.ResourceID, string(next.Status), next.SubmitTime, next.CompletionTime,
		next.UpdatedAt, exitCode(next.Exit), exitMessage(next.Exit), store.EncodeJSON(next.Args), label,
	); err != nil {
		return domain.TaskRun{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.TaskRun{}, err
	}
	return next, nil
}

func requireOneRow(tag pgconn.CommandTag, label string) error {
	if tag.RowsAffected() == 0 {
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

// translateWriteErr maps Postgres' unique_violation SQLSTATE (23505) to
// store.Conflict; all other errors pass through unchanged.
func translateWriteErr(err error, label string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.NewConflict(label)
	}
	return err
}
