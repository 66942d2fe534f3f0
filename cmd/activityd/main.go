package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/godamri/helix-activity/activity"
	"github.com/godamri/helix-activity/app"
	"github.com/godamri/helix-activity/audit"
	"github.com/godamri/helix-activity/cache"
	"github.com/godamri/helix-activity/config"
	"github.com/godamri/helix-activity/crypto"
	"github.com/godamri/helix-activity/database"
	"github.com/godamri/helix-activity/feature"
	"github.com/godamri/helix-activity/log"
	"github.com/godamri/helix-activity/managed"
	"github.com/godamri/helix-activity/messaging"
	"github.com/godamri/helix-activity/pkg/telemetry"
	"github.com/godamri/helix-activity/router"
	"github.com/godamri/helix-activity/server"
	"github.com/godamri/helix-activity/server/health"
	"github.com/godamri/helix-activity/server/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", os.Getenv("HELIX_CONFIG_FILE"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.NewLoader[Config]("HELIX", *configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "activityd: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Log, cfg.ServiceName)
	slog.SetDefault(logger)
	telemetry.InstallPropagator()

	runner := app.NewRunner(logger)
	runner.ShutdownTimeout = cfg.Server.ShutdownTimeout

	if err := runner.Run(func(ctx context.Context) error {
		return run(ctx, cfg, logger, runner)
	}); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger, runner *app.Runner) error {
	checker := health.NewChecker(0, logger)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" || cfg.Audit.Uses(audit.SinkRedis) {
		var err error
		if rdb, err = cache.NewRedis(ctx, cfg.Redis); err != nil {
			return err
		}
		runner.OnShutdown("redis", func(context.Context) error { return rdb.Close() })
		checker.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	sink, err := buildSink(ctx, cfg, logger, runner, checker, rdb)
	if err != nil {
		return err
	}

	comparator, err := audit.NewFieldComparator(cfg.Audit.WatchedFields, cfg.Audit.PasswordFields)
	if err != nil {
		return err
	}
	auditRouter := router.New()
	audit.NewService(sink, comparator, logger).Register(auditRouter)

	var conn router.Connection = auditRouter
	if cfg.Router.AuditURL != "" {
		logger.Info("Activity records routed to remote audit service", "url", cfg.Router.AuditURL)
		var opts []router.HTTPOption
		if cfg.Router.AuditToken != "" {
			opts = append(opts, router.WithBearerToken(cfg.Router.AuditToken))
		}
		conn = router.NewHTTPConnection(cfg.Router.AuditURL, cfg.Router.Timeout, opts...)
	}
	activityLogger := activity.NewRouterLogger(conn, cfg.Activity, logger)

	flags, err := buildFlags(ctx, cfg.Feature, logger)
	if err != nil {
		return err
	}

	managedSvc := managed.NewService(cfg.Managed, managed.NewMemoryStore(), activityLogger, flags,
		crypto.NewHasher(cfg.Hash), logger)

	auth, err := buildAuth(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}
	authMW := middleware.NewAuthMiddleware(auth)

	r := chi.NewRouter()
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.TraceIDMiddleware)
	r.Use(middleware.OTelMiddleware(cfg.ServiceName))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware)

	checker.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMW.HTTPMiddleware)
		var limiter redis.Scripter
		var idem redis.Cmdable
		if rdb != nil {
			limiter, idem = rdb, rdb
		}
		r.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit, logger))
		r.Use(middleware.IdempotencyMiddleware(idem, cfg.Idempotency, logger))

		r.Mount("/managed", managed.NewHandler(managedSvc).Routes())
		if cfg.Auth.Mode == "none" {
			logger.Warn("Router endpoint not exposed without authentication")
			return
		}
		r.Mount("/router", middleware.RequireRole(cfg.Router.ServiceRole)(router.NewHTTPHandler(auditRouter)))
	})

	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCRecovery(logger),
		authMW.GRPCUnaryInterceptor("/grpc.health.v1.Health/"),
	))
	srv := server.New(cfg.Server, logger, r, grpcSrv)
	return srv.Start(ctx)
}

func buildSink(ctx context.Context, cfg *Config, logger *slog.Logger, runner *app.Runner, checker *health.Checker, rdb *redis.Client) (audit.Sink, error) {
	if !cfg.Audit.Enabled {
		logger.Warn("Audit disabled, activity records are discarded")
		return audit.NoopSink{}, nil
	}

	var sinks audit.MultiSink
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case audit.SinkStdout:
			s := audit.NewAsyncSink(os.Stdout, cfg.Audit.BufferSize, cfg.Audit.BlockOnFull, logger)
			runner.OnShutdown("stdout sink", func(context.Context) error { return s.Close() })
			sinks = append(sinks, s)

		case audit.SinkKafka:
			s, err := audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, logger)
			if err != nil {
				return nil, err
			}
			runner.OnShutdown("kafka sink", func(context.Context) error { return s.Close() })
			sinks = append(sinks, s)

		case audit.SinkStream:
			p, err := messaging.NewProducer(ctx, cfg.Kafka, logger)
			if err != nil {
				return nil, err
			}
			runner.OnShutdown("kafka producer", func(context.Context) error { return p.Close() })
			checker.Register("kafka", p.Ping)
			sinks = append(sinks, audit.NewStreamSink(p, cfg.Audit.KafkaTopic))

		case audit.SinkPostgres:
			db, err := database.NewPostgres(ctx, cfg.Database, cfg.ServiceName)
			if err != nil {
				return nil, err
			}
			runner.OnShutdown("postgres", func(context.Context) error { return db.Close() })
			store, err := postgresStore(ctx, db, cfg.Database.MigrateOnStart)
			if err != nil {
				return nil, err
			}
			checker.Register("postgres", store.Ping)
			sinks = append(sinks, store)

		case audit.SinkRedis:
			s := audit.NewRedisStreamSink(rdb, cfg.Audit.RedisStream, cfg.Audit.RedisStreamMaxLen)
			sinks = append(sinks, s)
		}
	}

	switch len(sinks) {
	case 0:
		return audit.NoopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

func postgresStore(ctx context.Context, db *sql.DB, migrate bool) (*audit.PostgresStore, error) {
	store := audit.NewPostgresStore(db)
	if migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func buildFlags(ctx context.Context, cfg FeatureConfig, logger *slog.Logger) (*feature.Manager, error) {
	providers := []feature.Provider{feature.EnvProvider{}}
	if cfg.FlagsFile != "" {
		fp, err := feature.NewFileProvider(cfg.FlagsFile, logger)
		if err != nil {
			return nil, err
		}
		go fp.Watch(ctx, cfg.ReloadInterval)
		providers = append(providers, fp)
	}
	return feature.NewManager(providers...), nil
}

func buildAuth(ctx context.Context, cfg AuthConfig, logger *slog.Logger) (middleware.AuthStrategy, error) {
	switch cfg.Mode {
	case "header":
		return middleware.NewTrustedHeaderStrategy(cfg.Header, logger)
	case "jwt":
		verifier, err := crypto.NewJWKSCachingClient(ctx, cfg.JWKS, logger)
		if err != nil {
			return nil, err
		}
		return middleware.NewJWTStrategy(verifier, logger), nil
	case "none", "":
		logger.Warn("Authentication disabled, activity records carry no actor")
		return middleware.AnonymousStrategy{}, nil
	default:
		return nil, errors.New("activityd: unknown auth mode " + cfg.Mode)
	}
}
