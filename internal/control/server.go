// Package control implements the Control Surface (spec.md §4.7): a
// message-framed, persistent-connection JSON protocol for launching
// pipelines and querying their state, grounded on the accept-loop and
// length-prefixed framing of jsturma-joblet/persist/internal/ipc/server.go
// and the verb set of original_source/odin/serve.py's handle_request.
package control

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Interactions-AI/odin/internal/domain"
	"github.com/Interactions-AI/odin/internal/executor"
	"github.com/Interactions-AI/odin/internal/handler"
	"github.com/Interactions-AI/odin/internal/pipeline"
	"github.com/Interactions-AI/odin/internal/store"
)

// Server accepts Control Surface connections. Each accepted connection
// handles exactly one request and then closes (spec.md §5: "connection-
// per-request fan-out").
type Server struct {
	store         store.JobsStore
	handlers      *handler.Registry
	exec          *executor.Executor
	pipelinesRoot string
	dataRoot      string

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server. pipelinesRoot is where pipeline descriptors are
// loaded from (spec.md §6); dataRoot is where per-run workspaces live
// under ${RUN_PATH}.
func New(jobsStore store.JobsStore, handlers *handler.Registry, exec *executor.Executor, pipelinesRoot, dataRoot string) *Server {
	return &Server{
		store:         jobsStore,
		handlers:      handlers,
		exec:          exec,
		pipelinesRoot: pipelinesRoot,
		dataRoot:      dataRoot,
	}
}

// ListenAndServe binds addr and serves Control Surface connections until
// ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info().Str("addr", addr).Msg("control surface listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				log.Error().Err(err).Msg("control surface accept error")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	r := bufio.NewReader(conn)
	req, err := readFrame(r)
	if err != nil {
		log.Debug().Err(err).Msg("control surface connection closed before a complete request")
		return
	}

	switch strings.ToUpper(req.Op) {
	case "PING":
		s.handlePing(conn, req)
	case "RUN":
		s.handleRun(ctx, conn, req)
	case "STATUS":
		s.handleStatus(ctx, conn, req)
	case "DATA":
		s.handleData(ctx, conn, req)
	case "LOGS":
		s.handleLogs(ctx, conn, req)
	case "EVENTS":
		s.handleEvents(ctx, conn, req)
	case "CLEANUP":
		s.handleCleanup(ctx, conn, req)
	case "SHOW":
		s.handleShow(ctx, conn, req)
	default:
		writeFrame(conn, errMsg(req.Op+" not found."))
	}
}

// handlePing echoes back req.Echo (SPEC_FULL.md §12, point 7).
func (s *Server) handlePing(conn net.Conn, req request) {
	reply := "PONG"
	if req.Echo != "" {
		reply = "PONG " + req.Echo
	}
	writeFrame(conn, ok(reply))
}

func (s *Server) handleRun(ctx context.Context, conn net.Conn, req request) {
	if !pipeline.ValidateName(req.Pipeline) {
		writeFrame(conn, errMsg("invalid pipeline name: "+req.Pipeline))
		return
	}
	def, err := pipeline.Load(s.pipelinesRoot, req.Pipeline)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	inst, err := pipeline.Instantiate(s.pipelinesRoot, filepath.Join(s.pipelinesRoot, req.Pipeline), s.dataRoot, def)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	run, err := s.exec.Submit(ctx, inst, def.Name)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	writeFrame(conn, ok(run.Label))
}

type pipelineStatus struct {
	PipelineStatus domain.PipelineRun `json:"pipeline_status"`
	TaskStatuses   []domain.TaskRun   `json:"task_statuses"`
}

func (s *Server) statusFor(ctx context.Context, label string) (pipelineStatus, error) {
	run, err := s.store.GetPipelineRun(ctx, label)
	if err != nil {
		return pipelineStatus{}, err
	}
	tasks, err := s.store.ListTaskRunsByParent(ctx, label)
	if err != nil {
		return pipelineStatus{}, err
	}
	return pipelineStatus{PipelineStatus: run, TaskStatuses: tasks}, nil
}

// handleStatus resolves label as, in order: an exact PipelineRun label,
// an exact TaskRun label, or (SPEC_FULL.md §12, point 6) a pipeline-name
// prefix matching any number of runs.
func (s *Server) handleStatus(ctx context.Context, conn net.Conn, req request) {
	label := req.Label
	if status, err := s.statusFor(ctx, label); err == nil {
		writeFrame(conn, ok(status))
		return
	}
	if task, err := s.store.GetTaskRun(ctx, label); err == nil {
		writeFrame(conn, ok(task))
		return
	}

	runs, err := s.store.SearchPipelineRunsByLabelSubstring(ctx, label)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	results := make([]pipelineStatus, 0, len(runs))
	for _, run := range runs {
		status, err := s.statusFor(ctx, run.Label)
		if err != nil {
			continue
		}
		results = append(results, status)
	}
	if len(results) == 0 {
		writeFrame(conn, errMsg("no pipeline or task run matching "+label))
		return
	}
	writeFrame(conn, ok(results))
}

// handleData returns the raw stored record for label, a PipelineRun or
// TaskRun (spec.md §4.7: "DATA <label> | raw stored record").
func (s *Server) handleData(ctx context.Context, conn net.Conn, req request) {
	if strings.Contains(req.Label, domain.LabelSeparator) {
		task, err := s.store.GetTaskRun(ctx, req.Label)
		if err != nil {
			writeFrame(conn, errResp(err))
			return
		}
		writeFrame(conn, ok(task))
		return
	}
	run, err := s.store.GetPipelineRun(ctx, req.Label)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	writeFrame(conn, ok(run))
}

// resolveHandler looks up the TaskRun's Handler for LOGS/EVENTS.
func (s *Server) resolveHandler(ctx context.Context, taskLabel string) (domain.TaskRun, handler.Handler, error) {
	task, err := s.store.GetTaskRun(ctx, taskLabel)
	if err != nil {
		return domain.TaskRun{}, nil, err
	}
	h, err := s.handlers.Resolve(task.ResourceType)
	if err != nil {
		return domain.TaskRun{}, nil, err
	}
	return task, h, nil
}

// handleLogs streams a task's logs one line per frame, terminated by an
// END frame (spec.md §4.7: "stream logs via Handler"). The underlying
// Handler.Logs call returns a point-in-time snapshot, not a live tail, so
// req.Follow is accepted for protocol compatibility with
// original_source/odin/serve.py but does not keep the connection open
// past the snapshot (see DESIGN.md).
func (s *Server) handleLogs(ctx context.Context, conn net.Conn, req request) {
	task, h, err := s.resolveHandler(ctx, req.TaskLabel)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	rc, err := h.Logs(ctx, task)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		if err := writeFrame(conn, ok(scanner.Text())); err != nil {
			return
		}
	}
	writeFrame(conn, end("LOGS"))
}

// handleEvents streams a task's cluster events one per frame, terminated
// by an END frame (spec.md §4.7: "stream events via Handler").
func (s *Server) handleEvents(ctx context.Context, conn net.Conn, req request) {
	task, h, err := s.resolveHandler(ctx, req.TaskLabel)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	events, err := h.Events(ctx, task)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	for _, e := range events {
		if err := writeFrame(conn, ok(e)); err != nil {
			return
		}
	}
	writeFrame(conn, end("EVENTS"))
}

type cleanupResult struct {
	Label   string `json:"label"`
	DB      bool   `json:"db"`
	FS      bool   `json:"fs"`
	Purged  bool   `json:"purged"`
}

// handleCleanup cancels the run, then optionally purges the store record
// and/or the on-disk run workspace (spec.md §4.7/§6: "cleanup flags db
// and fs toggle, respectively, purging the store record and removing the
// task's on-disk workspace under ${RUN_PATH}").
func (s *Server) handleCleanup(ctx context.Context, conn net.Conn, req request) {
	s.exec.Cancel(req.Label)

	result := cleanupResult{Label: req.Label, DB: req.DB, FS: req.FS}
	if req.DB {
		if err := s.store.DeletePipelineRun(ctx, req.Label); err != nil {
			writeFrame(conn, errResp(err))
			return
		}
		result.Purged = true
	}
	if req.FS {
		runPath := filepath.Join(s.dataRoot, req.Label)
		if err := os.RemoveAll(runPath); err != nil {
			writeFrame(conn, errResp(err))
			return
		}
		result.Purged = true
	}
	writeFrame(conn, ok(result))
}

// handleShow lists PipelineRuns whose label contains req.Query (spec.md
// §4.7: "SHOW <query> | list matching runs"; SPEC_FULL.md §12, point 6).
func (s *Server) handleShow(ctx context.Context, conn net.Conn, req request) {
	runs, err := s.store.SearchPipelineRunsByLabelSubstring(ctx, req.Query)
	if err != nil {
		writeFrame(conn, errResp(err))
		return
	}
	writeFrame(conn, ok(runs))
}
