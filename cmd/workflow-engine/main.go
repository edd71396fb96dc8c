package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dataforge/workflow-engine/internal/audit"
	"github.com/dataforge/workflow-engine/internal/config"
	"github.com/dataforge/workflow-engine/internal/events"
	"github.com/dataforge/workflow-engine/internal/export"
	"github.com/dataforge/workflow-engine/internal/materializer"
	"github.com/dataforge/workflow-engine/internal/queue"
	"github.com/dataforge/workflow-engine/internal/remediation"
	"github.com/dataforge/workflow-engine/internal/scheduler"
	"github.com/dataforge/workflow-engine/internal/store"
	"github.com/dataforge/workflow-engine/pkg/log"
	"github.com/dataforge/workflow-engine/pkg/migrations"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	logger := log.Setup(cfg.Service.LogLevel)
	defer func() { _ = logger.Sync() }()

	zap.S().Info("starting workflow engine")
	defer zap.S().Info("workflow engine stopped")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	db, err := store.InitDB(cfg)
	if err != nil {
		zap.S().Fatalf("initializing data store: %v", err)
	}

	s := store.NewStore(db)
	defer s.Close()

	pool, err := store.InitPgxPool(ctx, cfg)
	if err != nil {
		zap.S().Fatalf("initializing pgx pool: %v", err)
	}
	defer pool.Close()

	if cfg.Service.MigrationFolder != "" {
		if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder, pool); err != nil {
			zap.S().Fatalf("running migrations: %v", err)
		}
	} else {
		if err := migrations.MigrateRiver(pool); err != nil {
			zap.S().Fatalf("running queue migrations: %v", err)
		}
	}

	if err := s.Workflow().CreateTable(ctx, cfg.Pipeline.StatusTable); err != nil {
		zap.S().Fatalf("creating status table: %v", err)
	}
	if err := s.FileHeader().CreateTable(ctx, cfg.Pipeline.HeaderTable); err != nil {
		zap.S().Fatalf("creating header table: %v", err)
	}

	producer := events.NewEventProducer(&events.StdoutWriter{})
	defer func() { _ = producer.Close() }()

	auditProducer := events.NewEventProducer(&events.StdoutWriter{}, events.WithOutputTopic(cfg.Audit.Topic))
	defer func() { _ = auditProducer.Close() }()

	insertClient, err := queue.NewInsertClient(pool)
	if err != nil {
		zap.S().Fatalf("creating queue insert client: %v", err)
	}
	router := queue.NewRouter(insertClient, cfg)

	mat := materializer.New(db)
	processor := remediation.NewProcessor(mat)
	audits := audit.NewPublisher(cfg, auditProducer, s.AuditLog())
	exporter := export.NewExporter(s.Workflow())

	consumer, err := queue.NewConsumerClient(pool, cfg, queue.WorkerDeps{
		Cfg:          cfg,
		Store:        s,
		Router:       router,
		Remediation:  processor,
		Materializer: mat,
	})
	if err != nil {
		zap.S().Fatalf("creating queue consumer client: %v", err)
	}
	if err := consumer.Start(ctx); err != nil {
		zap.S().Fatalf("starting queue consumers: %v", err)
	}

	sched := scheduler.New(cfg, s, producer,
		scheduler.WithAuditPublisher(audits),
		scheduler.WithExporter(exporter, cfg.Service.ExportFolder),
	)
	go sched.Run(ctx)

	go serveMetrics(cfg.Service.MetricsAddress)

	<-ctx.Done()

	if err := consumer.Stop(context.Background()); err != nil {
		zap.S().Errorf("stopping queue consumers: %v", err)
	}
}

func serveMetrics(address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(address, mux); err != nil {
		zap.S().Errorf("metrics server terminated: %v", err)
	}
}
