// Package app assembles a ruginx process from its configuration: the
// thread pool, the TCP server, the optional Redis limiter, the statistics
// reporter and the admin endpoint.
package app

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/ruginx/internal/admin"
	"github.com/vnykmshr/ruginx/internal/config"
	"github.com/vnykmshr/ruginx/internal/server"
	"github.com/vnykmshr/ruginx/pkg/metrics"
	"github.com/vnykmshr/ruginx/pkg/ratelimit/distributed"
	"github.com/vnykmshr/ruginx/pkg/scheduler"
	"github.com/vnykmshr/ruginx/pkg/threadpool"
)

const (
	poolName       = "connections"
	reporterTaskID = "stats-reporter"
)

// App owns every long-lived component of the process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	prom     *prometheus.Registry
	registry *metrics.Registry
	pool     *threadpool.MetricsPool
	sched    *scheduler.Scheduler
	rdb      *redis.Client
	limiter  distributed.Limiter
	server   *server.Server
	admin    *admin.Server
}

// New builds the components described by cfg. When rate limiting is
// enabled it connects to Redis, retrying up to the configured attempts.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger}

	a.prom = prometheus.NewRegistry()
	a.prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.registry = metrics.NewRegistry(a.prom)

	pool, err := threadpool.NewWithConfig(threadpool.Config{
		WorkerCount: cfg.Pool.Workers,
		Logger:      logger.Named("pool"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create thread pool")
	}
	a.pool = threadpool.NewMetricsPool(pool, poolName, a.registry)

	if cfg.RateLimit.Enabled {
		if err := a.connectLimiter(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.server = &server.Server{
		Addr:           cfg.Server.Addr,
		Root:           cfg.Server.Root,
		Pool:           a.pool,
		Limiter:        a.limiter,
		MaxConnections: cfg.Server.MaxConnections,
		MaxOpenConns:   cfg.Server.MaxOpenConns,
		ReadTimeout:    cfg.Server.ReadDeadline(),
		Logger:         logger.Named("server"),
		Metrics:        a.registry,
	}

	a.sched, err = scheduler.New(a.pool, scheduler.Config{
		Logger:  logger.Named("scheduler"),
		Metrics: a.registry,
	})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "could not create scheduler")
	}
	if cfg.Reporter.Enabled {
		err := a.sched.ScheduleCronWithOptions(reporterTaskID, cfg.Reporter.Schedule,
			&reporter{pool: a.pool, conns: a.server, logger: logger.Named("reporter")},
			scheduler.Options{SkipIfStillRunning: true})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "could not schedule stats reporter")
		}
	}

	if cfg.Admin.Enabled {
		a.admin = &admin.Server{
			Addr:      cfg.Admin.Addr,
			Pool:      a.pool,
			Conns:     a.server,
			Limiter:   a.limiter,
			Scheduler: a.sched,
			Gatherer:  a.prom,
			Logger:    logger.Named("admin"),
		}
	}

	return a, nil
}

func (a *App) connectLimiter(ctx context.Context) error {
	rl := a.cfg.RateLimit

	rdb, err := distributed.Dial(ctx, &redis.Options{Addr: rl.RedisAddr}, rl.ConnectAttempts)
	if err != nil {
		return errors.Wrapf(err, "could not connect to redis at %s", rl.RedisAddr)
	}
	a.rdb = rdb

	a.limiter, err = distributed.NewFixedWindow(distributed.Config{
		Redis:    rdb,
		Key:      rl.Key,
		Limit:    rl.Rate,
		Window:   rl.WindowDuration(),
		FailOpen: true,
	})
	if err != nil {
		return errors.Wrap(err, "could not create rate limiter")
	}
	a.logger.Info("rate limiting enabled",
		zap.String("redis", rl.RedisAddr),
		zap.Int64("rate", rl.Rate),
		zap.Duration("window", rl.WindowDuration()))
	return nil
}

// Pool returns the instrumented thread pool.
func (a *App) Pool() *threadpool.MetricsPool {
	return a.pool
}

// Server returns the TCP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Run listens on the configured address and serves until ctx is cancelled
// or the server stops on its own.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", a.cfg.Server.Addr)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the TCP server on ln alongside the scheduler and the admin
// endpoint. When the server returns, the admin endpoint is stopped too.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.sched.Start(); err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "could not start scheduler")
	}
	defer a.sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return a.server.Serve(gctx, ln)
	})
	if a.admin != nil {
		g.Go(func() error {
			return a.admin.Run(gctx)
		})
	}
	return g.Wait()
}

// Close stops the scheduler, shuts the pool down (waiting for in-flight
// connections) and releases the Redis connection.
func (a *App) Close() {
	if a.sched != nil {
		a.sched.Stop()
	}

	a.logger.Info("shutting down")
	a.pool.Shutdown()

	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			a.logger.Warn("could not deregister from rate limiter", zap.Error(err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
