package sqlite

import (
	"database/sql"

	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/store"
)

// row is satisfied by both *sql.Row and *sql.Rows so scanPipelineRun/
// scanTaskRun can be shared between single-row and multi-row callers.
type row interface {
	Scan(dest ...any) error
}

func scanPipelineRun(r row) (domain.PipelineRun, error) {
	var (
		run                                                domain.PipelineRun
		version, parent, errMsg, completionTime             sql.NullString
		waiting, executing, executed, errored, terminated   string
		submitTime, tasks                                   string
	)
	if err := r.Scan(
		&run.Label, &run.Job, &version, &parent,
		&waiting, &executing, &executed, &errored, &terminated,
		&run.Status, &submitTime, &completionTime, &errMsg, &tasks,
	); err != nil {
		return domain.PipelineRun{}, err
	}
	if version.Valid {
		run.Version = &version.String
	}
	if parent.Valid {
		run.Parent = &parent.String
	}
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	if err := store.DecodeJSON(waiting, &run.Waiting); err != nil {
		return domain.PipelineRun{}, err
	}
	if err := store.DecodeJSON(executing, &run.Executing); err != nil {
		return domain.PipelineRun{}, err
	}
	if err := store.DecodeJSON(executed, &run.Executed); err != nil {
		return domain.PipelineRun{}, err
	}
	if err := store.DecodeJSON(errored, &run.Errored); err != nil {
		return domain.PipelineRun{}, err
	}
	if err := store.DecodeJSON(terminated, &run.Terminated); err != nil {
		return domain.PipelineRun{}, err
	}
	if err := store.DecodeJSON(tasks, &run.Tasks); err != nil {
		return domain.PipelineRun{}, err
	}
	t, err := store.ParseTime(submitTime)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	if t != nil {
		run.SubmitTime = *t
	}
	if completionTime.Valid {
		ct, err := store.ParseTime(completionTime.String)
		if err != nil {
			return domain.PipelineRun{}, err
		}
		run.CompletionTime = ct
	}
	return run, nil
}

func scanPipelineRuns(rows *sql.Rows) ([]domain.PipelineRun, error) {
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
const taskRunSelectRows = taskRunSelect

func scanTaskRun(r row) (domain.TaskRun, error) {
	var (
		t                                                domain.TaskRun
		command, args, nodeSelector, mounts, secrets      string
		configMaps, depends                               string
		submitTime, completionTime                        sql.NullString
		updatedAt                                          string
		exitCode                                           sql.NullInt64
		exitMessage                                        sql.NullString
		requestsEarlyExit                                  bool
	)
	if err := r.Scan(
		&t.Label, &t.Parent, &t.Name, &command, &args, &t.Image, &t.ResourceType, &t.ResourceID,
		&nodeSelector, &t.PullPolicy, &t.NumGPUs, &t.NumWorkers, &mounts, &secrets, &configMaps,
		&depends, &t.Status, &submitTime, &completionTime, &updatedAt, &exitCode, &exitMessage,
		&requestsEarlyExit,
	); err != nil {
		return domain.TaskRun{}, err
	}
	t.RequestsEarlyExit = requestsEarlyExit
	if ua, err := store.ParseTime(updatedAt); err != nil {
		return domain.TaskRun{}, err
	} else if ua != nil {
		t.UpdatedAt = *ua
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
	if submitTime.Valid {
		st, err := store.ParseTime(submitTime.String)
		if err != nil {
			return domain.TaskRun{}, err
		}
		t.SubmitTime = st
	}
	if completionTime.Valid {
		ct, err := store.ParseTime(completionTime.String)
		if err != nil {
			return domain.TaskRun{}, err
		}
		t.CompletionTime = ct
	}
	if exitCode.Valid {
		t.Exit = &domain.RunExit{Code: int32(exitCode.Int64), Message: exitMessage.String}
	}
	return t, nil
}

func scanTaskRuns(rows *sql.Rows) ([]domain.TaskRun, error) {
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
