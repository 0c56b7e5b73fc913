package postgres

import (
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/store"
)

// row is satisfied by both pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanPipelineRun(r row) (domain.PipelineRun, error) {
	var (
		run                                                domain.PipelineRun
		version, parent, errMsg                            *string
		waiting, executing, executed, errored, terminated  string
		tasks                                               string
		completionTime                                      *time.Time
	)
	if err := r.Scan(
		&run.Label, &run.Job, &version, &parent,
		&waiting, &executing, &executed, &errored, &terminated,
		&run.Status, &run.SubmitTime, &completionTime, &errMsg, &tasks,
	); err != nil {
		return domain.PipelineRun{}, err
	}
	run.Version = version
	run.Parent = parent
	run.ErrorMessage = errMsg
	run.CompletionTime = completionTime
	for _, dec := range []struct {
		data string
		dest any
	}{
		{waiting, &run.Waiting}, {executing, &run.Executing}, {executed, &run.Executed},
		{errored, &run.Errored}, {terminated, &run.Terminated}, {tasks, &run.Tasks},
	} {
		if err := store.DecodeJSON(dec.data, dec.dest); err != nil {
			return domain.PipelineRun{}, err
		}
	}
	return run, nil
}

func scanPipelineRuns(rows pgx.Rows) ([]domain.PipelineRun, error) {
	var out []domain.PipelineRun
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const taskRunColumns = `
	label, parent, name, command, args, image, resource_type, resource_id,
	node_selector, pull_policy, num_gpus, num_workers, mounts, secrets, config_maps,
	depends, status, submit_time, completion_time, updated_at, exit_code, exit_message,
	requests_early_exit`

const taskRunSelect = `SELECT` + taskRunColumns + ` FROM task_runs`

func scanTaskRun(r row) (domain.TaskRun, error) {
	var (
		t                                           domain.TaskRun
		command, args, nodeSelector, mounts, secrets string
		configMaps, depends                          string
		exitCode                                      *int32
		exitMessage                                   *string
	)
	if err := r.Scan(
		&t.Label, &t.Parent, &t.Name, &command, &args, &t.Image, &t.ResourceType, &t.ResourceID,
		&nodeSelector, &t.PullPolicy, &t.NumGPUs, &t.NumWorkers, &mounts, &secrets, &configMaps,
		&depends, &t.Status, &t.SubmitTime, &t.CompletionTime, &t.UpdatedAt, &exitCode, &exitMessage,
		&t.RequestsEarlyExit,
	); err != nil {
		return domain.TaskRun{}, err
	}
	for _, dec := range []struct {
		data string
		dest any
	}{
		{command, &t.Command}, {args, &t.Args}, {nodeSelector, &t.NodeSelector},
		{mounts, &t.Mounts}, {secrets, &t.Secrets}, {configMaps, &t.ConfigMaps},
		{depends, &t.Depends},
	} {
		if err := store.DecodeJSON(dec.data, dec.dest); err != nil {
			return domain.TaskRun{}, err
		}
	}
	if exitCode != nil {
		msg := ""
		if exitMessage != nil {
			msg = *exitMessage
		}
		t.Exit = &domain.RunExit{Code: *exitCode, Message: msg}
	}
	return t, nil
}

func scanTaskRuns(rows pgx.Rows) ([]domain.TaskRun, error) {
	var out []domain.TaskRun
	for rows.Next() {
		t, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
