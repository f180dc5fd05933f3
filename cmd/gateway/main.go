// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Gateway is the entry point for the Yomira Data API gateway.

The server turns a declarative resource document into a REST surface over
one or more relational or document data sources, applying database-level
authorization policies and shaping results without hand-written repository
code for any configured entity.

Usage:

	go run cmd/gateway/main.go [flags]

The flags/environment variables are:

	SERVER_PORT            Port to listen on (default: 8080)
	ENVIRONMENT             deployment environment (development, production)
	RESOURCE_CONFIG_PATH    path to the YAML resource document (required)
	JWT_PRIVATE_KEY_PATH    PEM private key for dev token issuance (required)
	JWT_PUBLIC_KEY_PATH     PEM public key for bearer token verification (required)
	REDIS_URL               Redis connection string (optional; enables response cache)

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Load and validate environment variables and the resource document.
 3. Storage: Open connection-pool managers per SQL dialect, plus Redis/Mongo
    if configured.
 4. Migration: Run idempotent bookkeeping-schema updates against the
    control-plane data source, if any.
 5. Wiring: Translate the resource document into the Metadata Provider,
    Engine Factory, and Authorization Policy Processor.
 6. Server: Bind HTTP listener and handle graceful shutdown.

No business logic lives here. This file is strictly for orchestration and wiring.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/dataapi/internal/api"
	"github.com/taibuivan/dataapi/internal/docdb"
	"github.com/taibuivan/dataapi/internal/engine"
	"github.com/taibuivan/dataapi/internal/executor"
	"github.com/taibuivan/dataapi/internal/gateway"
	"github.com/taibuivan/dataapi/internal/graphqlgw"
	"github.com/taibuivan/dataapi/internal/platform/config"
	"github.com/taibuivan/dataapi/internal/platform/constants"
	"github.com/taibuivan/dataapi/internal/platform/diagnostics"
	"github.com/taibuivan/dataapi/internal/platform/migration"
	"github.com/taibuivan/dataapi/internal/platform/mssqlconn"
	"github.com/taibuivan/dataapi/internal/platform/mysqlconn"
	"github.com/taibuivan/dataapi/internal/platform/postgres"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	redisstore "github.com/taibuivan/dataapi/internal/platform/redis"
	"github.com/taibuivan/dataapi/internal/platform/respcache"
	"github.com/taibuivan/dataapi/internal/policy"
	"github.com/taibuivan/dataapi/internal/sqlengine/mysql"
	"github.com/taibuivan/dataapi/internal/sqlengine/pgsql"
	"github.com/taibuivan/dataapi/internal/sqlengine/tsql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	log := rawLog.With(slog.String("app", "dataapi-gateway"))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		log = debugLog.With(slog.String("app", "dataapi-gateway"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	rc, err := config.LoadRuntimeConfig(cfg.ResourceConfigPath)
	if err != nil {
		return fmt.Errorf("load resource document: %w", err)
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Int("entities", len(rc.Entities)),
	)

	// Root context for startup. A 30s deadline prevents the app from hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. SQL Connection Pool Managers
	// Pools are opened lazily per data source on first use; the managers
	// themselves are cheap to construct up front.
	pgPools := postgres.NewManager(log)
	defer pgPools.Close()
	mysqlPools := mysqlconn.NewManager(log)
	defer mysqlPools.Close()
	mssqlPools := mssqlconn.NewManager(log)
	defer mssqlPools.Close()

	// # 4. Response-Shaping Cache (optional)
	var cache executor.Cache
	var cacheTTL time.Duration
	var rdb *redis.Client
	if rc.Cache.Enabled && cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
		cache = respcache.New(rdb, log)
		cacheTTL = time.Duration(rc.Cache.TTLSeconds) * time.Second
	}

	// # 5. DOC-DB (optional)
	var docDB engine.DocDBEngine
	if ds, ok := firstDocDBDataSource(rc); ok {
		client, err := docdb.Connect(startupCtx, ds.ConnectionString, log)
		if err != nil {
			return fmt.Errorf("connect to document store: %w", err)
		}
		defer func() {
			log.Info("closing document store client")
			if cerr := client.Disconnect(context.Background()); cerr != nil {
				log.Error("document store disconnect error", slog.Any("error", cerr))
			}
		}()
		docDB = docdb.New(client, mongoDatabaseName(ds.ConnectionString), log, cfg.DeveloperMode())
	}

	// # 6. Migrations
	// Applied against whichever data source is marked is-control-plane, if any.
	var controlPlanePool *pgxpool.Pool
	if controlDS, ok := controlPlaneDataSource(rc); ok {
		if err := migration.RunUp(controlDS.ConnectionString, cfg.MigrationsPath, log); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		controlPlanePool, err = pgPools.Pool(startupCtx, controlDS.ConnectionString)
		if err != nil {
			return fmt.Errorf("open control-plane pool: %w", err)
		}
	}

	// # 7. Platform Services
	jwtSvc, err := principal.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("initialize jwt service: %w", err)
	}

	// # 8. Domain Wiring
	provider := buildMetadataProvider(rc)
	diagCollector := diagnostics.New()

	exec := executor.New(
		newConnectionResolver(rc),
		pgPools,
		mysqlPools,
		mssqlPools,
		nil, // identity token provider: not configured in this deployment shape
		nil, // on-behalf-of exchanger: not configured in this deployment shape
		cache,
		cacheTTL,
		diagCollector,
		log,
		cfg.DeveloperMode(),
	)

	engines := engine.New(provider, exec, tsql.New(), pgsql.New(), mysql.New(), docDB)
	policies := policy.New(newPolicyResolver(rc))

	gatewayHandler := &gateway.Handler{
		Provider: provider,
		Engines:  engines,
		Policies: policies,
	}

	graphqlHandler, err := graphqlgw.NewHandler(provider, engines, policies)
	if err != nil {
		return fmt.Errorf("build graphql schema: %w", err)
	}

	// # 9. Health Wiring
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckMetadata: func() error {
			if len(rc.Entities) == 0 {
				return fmt.Errorf("no entities configured")
			}
			return nil
		},
		CheckCache: func() error {
			if rdb == nil {
				return nil
			}
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Gateway:   gatewayHandler,
		GraphQL:   graphqlHandler,
	}

	// Create a background context for the whole application lifecycle.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	server := api.NewServer(appCtx, cfg, log, jwtSvc, handlers)

	// # 10. Diagnostics Flush
	// Periodically flushes recorded statement ids to the bookkeeping store,
	// if a control-plane data source is configured.
	if controlPlanePool != nil {
		sink := diagnostics.NewPostgresSink(controlPlanePool, log)
		go runDiagnosticsFlush(appCtx, diagCollector, sink, log)
	}

	// # 11. Lifecycle Handling
	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http_server_crash: %w", err)
		}
	}()

	log.Info("gateway_running", slog.String("port", cfg.ServerPort))

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		return err
	}

	appCancel() // signal background workers (diagnostics flush) to stop

	log.Info("shutting_down_gateway", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return fmt.Errorf("server_shutdown_failed: %w", err)
	}

	log.Info("graceful_shutdown_complete")
	return nil
}

// runDiagnosticsFlush periodically drains the in-process diagnostics
// collector to the bookkeeping store until ctx is cancelled, then performs
// one final flush so the last request cycle's statements aren't lost.
func runDiagnosticsFlush(ctx context.Context, collector *diagnostics.Collector, sink *diagnostics.PostgresSink, log *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sink.Flush(ctx, collector)
		case <-ctx.Done():
			sink.Flush(context.Background(), collector)
			log.Info("diagnostics_flush_stopped")
			return
		}
	}
}
