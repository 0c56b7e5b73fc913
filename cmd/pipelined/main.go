// Package main runs pipelined, the scheduler's entrypoint: it seals
// both startup configs, constructs the Jobs Store, Cluster Client,
// Handler Registry, and Executor, and serves the Control Surface until
// signaled to shut down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Interactions-AI/odin/internal/cluster/k8s"
	"github.com/Interactions-AI/odin/internal/config"
	"github.com/Interactions-AI/odin/internal/control"
	"github.com/Interactions-AI/odin/internal/executor"
	"github.com/Interactions-AI/odin/internal/handler"
	"github.com/Interactions-AI/odin/internal/store"
	"github.com/Interactions-AI/odin/internal/store/postgres"
	"github.com/Interactions-AI/odin/internal/store/sqlite"
)

var version = "dev"

func main() {
	setupLogger()
	root := newRootCmd()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("pipelined exited")
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelined",
		Short: "pipelined runs the pipeline scheduler's Executor and Control Surface",
	}
	cmd.AddCommand(newVersionCmd(), newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pipelined", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	var pipelinesRoot, dataRoot, jobsStoreConfigPath, clusterConfigPath, listen, loglevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Executor and the Control Surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if level, err := zerolog.ParseLevel(loglevel); err == nil {
				zerolog.SetGlobalLevel(level)
			}
			if dataRoot == "" {
				dataRoot = pipelinesRoot
			}
			return serve(cmd.Context(), serveOptions{
				pipelinesRoot:       pipelinesRoot,
				dataRoot:            dataRoot,
				jobsStoreConfigPath: jobsStoreConfigPath,
				clusterConfigPath:   clusterConfigPath,
				listen:              listen,
			})
		},
	}

	cmd.Flags().StringVar(&pipelinesRoot, "pipelines-root", "", "directory of pipeline definitions")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "run-output directory (defaults to --pipelines-root, matching original_source's data_path fallback)")
	cmd.Flags().StringVar(&jobsStoreConfigPath, "jobs-store-config", "", "path to the jobs-store credential file")
	cmd.Flags().StringVar(&clusterConfigPath, "cluster-config", "", "path to the Cluster Client config file")
	cmd.Flags().StringVar(&listen, "listen", ":7979", "Control Surface listen address")
	cmd.Flags().StringVar(&loglevel, "loglevel", "info", "log level: trace|debug|info|warn|error")
	cmd.MarkFlagRequired("pipelines-root")
	cmd.MarkFlagRequired("jobs-store-config")
	cmd.MarkFlagRequired("cluster-config")

	return cmd
}

type serveOptions struct {
	pipelinesRoot       string
	dataRoot            string
	jobsStoreConfigPath string
	clusterConfigPath   string
	listen              string
}

func serve(ctx context.Context, opts serveOptions) error {
	jobsStoreConfig, err := config.LoadJobsStoreConfig(opts.jobsStoreConfigPath)
	if err != nil {
		return fmt.Errorf("loading jobs-store config: %w", err)
	}
	clusterConfig, err := config.LoadClusterConfig(opts.clusterConfigPath)
	if err != nil {
		return fmt.Errorf("loading cluster config: %w", err)
	}

	jobsStore, err := openJobsStore(ctx, jobsStoreConfig.JobsDB())
	if err != nil {
		return fmt.Errorf("opening jobs store: %w", err)
	}

	clusterClient, err := k8s.New(clusterConfig.Kubeconfig(), clusterConfig.Namespace())
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}

	handlers := handler.NewRegistry(clusterClient, clusterConfig.Namespace(), clusterConfig.ImagePullBackOffDeadline())

	exec := executor.New(jobsStore, handlers, executor.DefaultConfig())
	if err := exec.Resume(ctx); err != nil {
		return fmt.Errorf("resuming in-flight pipeline runs: %w", err)
	}

	server := control.New(jobsStore, handlers, exec, opts.pipelinesRoot, opts.dataRoot)

	log.Info().Str("listen", opts.listen).Str("pipelines_root", opts.pipelinesRoot).Msg("pipelined serving")
	return server.ListenAndServe(ctx, opts.listen)
}

func openJobsStore(ctx context.Context, section *config.DBSection) (store.JobsStore, error) {
	switch section.Backend() {
	case store.BackendPostgres:
		return postgres.New(ctx, section.ConnString())
	case store.BackendSQLite:
		return sqlite.New(section.ConnString())
	default:
		return nil, fmt.Errorf("unsupported jobs store backend %q", section.Backend())
	}
}
