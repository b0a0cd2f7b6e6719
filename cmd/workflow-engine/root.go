package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/flowruntime/engine/httpapi"
	"github.com/flowruntime/engine/workflow/breaker"
	"github.com/flowruntime/engine/workflow/coord"
	"github.com/flowruntime/engine/workflow/emit"
	"github.com/flowruntime/engine/workflow/handler"
	"github.com/flowruntime/engine/workflow/queue"
	"github.com/flowruntime/engine/workflow/store"
)

var rootCmd = &cobra.Command{
	Use:   "workflow-engine",
	Short: "Executes workflow DAGs: validates graphs, schedules nodes, streams logs.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		_ = godotenv.Load() // .env is optional
		setConfigDefaults()
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Root runs serve + worker in one process.
		return runEngine(cmd.Context(), true, true)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the HTTP/SSE surface only.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd.Context(), true, false)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the execution queue only.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEngine(cmd.Context(), false, true)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("store-driver", "sqlite", "persistence backend: memory | sqlite | postgres | mysql")
	flags.String("store-dsn", "flowengine.db", "store DSN (file path for sqlite)")
	flags.String("queue-driver", "memory", "queue backend: memory | redis")
	flags.String("redis-addr", "localhost:6379", "redis address for the redis queue")
	flags.String("queue-name", "flowengine:executions", "queue key prefix")
	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(serveCmd, workerCmd)
}

// engine is the fully wired process: store, queue, breaker, registry,
// coordinator, and (optionally) the HTTP server and worker loop.
type engine struct {
	profile profile
	store   store.Store
	queue   queue.Queue
	coord   *coord.Coordinator
	server  *httpapi.Server
	worker  *coord.Worker
	hub     *httpapi.Hub
}

func buildEngine(ctx context.Context, p profile) (*engine, error) {
	st, err := p.openStore(ctx)
	if err != nil {
		return nil, err
	}
	q, err := p.openQueue()
	if err != nil {
		st.Close()
		return nil, err
	}

	br := breaker.New(p.breakerConfig(), st)
	metrics := handler.NewMetrics(prometheus.DefaultRegisterer, st)

	model, err := p.chatModel()
	if err != nil {
		st.Close()
		q.Close()
		return nil, err
	}
	deps := handler.Dependencies{
		Model:          model,
		Breaker:        br,
		SandboxTimeout: p.SandboxTimeout,
	}
	registry := handler.NewDefaultRegistry(deps, metrics)

	hub := httpapi.NewHub()
	var emitter emit.Emitter = hub
	if p.OTelEnabled {
		tracer := sdktrace.NewTracerProvider().Tracer("workflow-engine")
		emitter = emit.NewMultiEmitter(hub, emit.NewOTelEmitter(tracer))
	}
	c := coord.New(p.coordConfig(), st, registry, emitter, q)
	server := httpapi.New(st, c, hub)
	worker := coord.NewWorker(coord.WorkerConfig{
		Prefetch:          p.QueuePrefetch,
		VisibilityTimeout: coord.DefaultWorkerConfig().VisibilityTimeout,
	}, q, c, slog.Default())

	return &engine{profile: p, store: st, queue: q, coord: c, server: server, worker: worker, hub: hub}, nil
}

func runEngine(ctx context.Context, serve, work bool) error {
	p := loadProfile()
	eng, err := buildEngine(ctx, p)
	if err != nil {
		return err
	}
	defer eng.store.Close()
	defer eng.queue.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	if work {
		if err := eng.worker.Recover(ctx); err != nil {
			slog.Error("queue recovery failed", "error", err)
		}
		go func() { errCh <- eng.worker.Run(ctx) }()
		slog.Info("worker started", "prefetch", p.QueuePrefetch)
	}
	if serve {
		go func() { errCh <- eng.server.Start(p.Addr) }()
		slog.Info("http server started", "addr", p.Addr)
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}
