package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v7"
	"github.com/spf13/cobra"

	"agentrunner/internal/config"
	"agentrunner/internal/health"
	"agentrunner/internal/job"
	"agentrunner/internal/joblock"
	"agentrunner/internal/notify"
	"agentrunner/internal/observability"
	"agentrunner/internal/portalloc"
	"agentrunner/internal/runtime/docker"
	"agentrunner/internal/store/memory"
	"agentrunner/internal/store/sqlstore"
)

// jobStore is a job.Store that can report readiness.
type jobStore interface {
	job.Store
	health.ReadinessChecker
}

// app holds the wired service and everything that must be released on exit.
type app struct {
	cfg            *config.ServiceConfig
	svc            *job.Service
	health         *health.Checker
	metrics        *observability.Metrics
	metricsHandler http.Handler
	notifier       *notify.Webhook

	closers []func() error
}

// newApp wires the lifecycle manager from configuration. withMetrics enables
// the OpenTelemetry meter; the shell runs without it.
func newApp(ctx context.Context, cmd *cobra.Command, withMetrics bool) (*app, error) {
	a := &app{cfg: config.LoadServiceConfig()}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	if path, _ := cmd.Flags().GetString("provisioning"); path != "" {
		a.cfg.ProvisioningFile = path
	}
	prov, err := config.LoadProvisioning(a.cfg.ProvisioningFile)
	if err != nil {
		return nil, err
	}

	var opts []job.Option
	var portMetrics portalloc.MetricsRecorder
	if withMetrics {
		a.metrics, a.metricsHandler, err = observability.NewMetrics(ctx)
		if err != nil {
			return nil, err
		}
		portMetrics = a.metrics
		opts = append(opts, job.WithMetrics(a.metrics))
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	runtimeCfg := docker.LoadConfigFromEnv()
	runtimeCfg.StopTimeout = prov.StopTimeout
	runtime, err := docker.NewRuntime(docker.Config{RuntimeConfig: runtimeCfg, Metrics: a.metrics})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, runtime.Close)
	if err := runtime.Ready(ctx); err != nil {
		slog.Warn("Docker daemon not reachable yet", "error", err)
	} else {
		slog.Info("Connected to Docker daemon")
	}

	deps := []health.Dependency{
		{Name: "runtime", Checker: runtime},
		{Name: "store", Checker: store},
	}

	if a.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		locker := joblock.NewRedis(client, joblock.RedisConfig{TTL: a.cfg.LockTTL})
		a.closers = append(a.closers, locker.Close)
		deps = append(deps, health.Dependency{Name: "locks", Checker: locker, Optional: true})
		opts = append(opts, job.WithLocker(locker))
		slog.Info("Using Redis job locks", "addr", a.cfg.RedisAddr)
	} else {
		opts = append(opts, job.WithLocker(joblock.NewLocal(0)))
	}

	if len(a.cfg.EventsURLs) > 0 {
		var notifyMetrics notify.MetricsRecorder
		if a.metrics != nil {
			notifyMetrics = a.metrics
		}
		a.notifier = notify.New(notify.LoadConfigFromEnv(a.cfg.EventsURLs, a.cfg.EventsSigningKey), notifyMetrics)
		opts = append(opts, job.WithNotifier(a.notifier))
	}

	a.health = health.NewChecker(deps...)
	a.svc = job.NewService(store, runtime, portalloc.New(portalloc.Config{}, portMetrics), job.Config{
		Image:              prov.AgentImage,
		ExposedPort:        prov.ExposedPort,
		AccessHost:         prov.AccessHost,
		AccessPath:         prov.AccessPath,
		NamePrefix:         prov.ContainerNamePrefix,
		Env:                prov.EnvList(),
		RuntimeTimeout:     prov.RuntimeTimeout,
		StopAllConcurrency: prov.StopAllConcurrency,
	}, opts...)

	slog.Info("Job service ready",
		"image", prov.AgentImage,
		"exposedPort", prov.ExposedPort,
		"store", a.cfg.StoreDriver,
	)
	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context) (jobStore, error) {
	var dialect sqlstore.Dialect
	switch a.cfg.StoreDriver {
	case config.StoreMemory:
		slog.Warn("Using in-memory job store; jobs are lost on restart")
		return memory.New(), nil
	case config.StorePostgres:
		dialect = sqlstore.Postgres
	case config.StoreSQLite:
		dialect = sqlstore.SQLite
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}

	if a.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for store driver %q", a.cfg.StoreDriver)
	}
	store, err := sqlstore.Open(dialect, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// close drains the notifier and releases clients in reverse order of creation.
func (a *app) close(ctx context.Context) {
	if a.notifier != nil {
		if err := a.notifier.Close(ctx); err != nil {
			slog.Warn("Notifier shutdown error", "error", err)
		}
		stats := a.notifier.Stats()
		slog.Info("Notifier stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Close error", "error", err)
		}
	}
}
