// Command signalbeam-executor is the long-running worker binary: it wires
// config, the gorm store, the Redis-Streams outbox relay, and a per-tenant
// reconcile-tick scheduler behind a signal-handling cleanup stack.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/signalbeam/signalbeam/internal/alertengine"
	"github.com/signalbeam/signalbeam/internal/config"
	"github.com/signalbeam/signalbeam/internal/desiredstate"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/events"
	"github.com/signalbeam/signalbeam/internal/executor"
	"github.com/signalbeam/signalbeam/internal/metrics"
	"github.com/signalbeam/signalbeam/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	if err := runCmd(log); err != nil {
		log.WithError(err).Fatal("executor service error")
	}
}

func runCmd(log *logrus.Logger) error {
	log.Info("starting signalbeam-executor")
	defer log.Info("signalbeam-executor stopped")

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	var cleanupFuncs []func() error
	defer func() {
		cancel()
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				log.WithError(err).Error("cleanup error")
			}
		}
	}()

	cfg, err := config.LoadOrGenerate(config.ConfigFile())
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	log.Info("using config:\n" + cfg.String())

	if lvl, err := logrus.ParseLevel(cfg.Service.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	db, err := store.InitDB(cfg, log)
	if err != nil {
		return fmt.Errorf("initializing data store: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	st := store.NewStore(db, log.WithField("pkg", "store"))
	cleanupFuncs = append(cleanupFuncs, st.Close)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.KV.Hostname, cfg.KV.Port),
		Password: string(cfg.KV.Password),
	})
	cleanupFuncs = append(cleanupFuncs, redisClient.Close)

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	collector := metrics.NewCollector(reg)
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, log.WithField("pkg", "metrics")); err != nil {
				log.WithError(err).Error("metrics server stopped with error")
			}
		}()
	}

	index := desiredstate.NewIndex(st)
	alerts := alertengine.NewEngine(st, log.WithField("pkg", "alertengine"))
	cachedBundles := executor.NewCachedBundleSource(st, time.Minute)
	cleanupFuncs = append(cleanupFuncs, func() error { cachedBundles.Stop(); return nil })

	ex := executor.New(st, cachedBundles, index, alerts, log.WithField("pkg", "executor")).
		WithMetrics(collector).
		WithLimits(cfg.Assignment.MaxRetries, cfg.Assignment.HeartbeatDeadline, cfg.Rollout.StallAlertAfter)

	relay := events.NewRelay(redisClient, st, log.WithField("pkg", "events"))
	go runRelayLoop(ctx, relay, log)

	tenants := strings.Split(os.Getenv("SIGNALBEAM_TENANTS"), ",")
	for _, t := range tenants {
		if t == "" {
			continue
		}
		tenantID, err := domain.ParseTenantID(t)
		if err != nil {
			log.WithError(err).WithField("tenant", t).Warn("skipping malformed SIGNALBEAM_TENANTS entry")
			continue
		}
		sched := executor.NewScheduler(st, ex, tenantID, cfg.Reconcile.ShardCount, tickSpec(cfg), cfg.Reconcile.TickDeadline, log.WithField("tenant_id", tenantID))
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.WithError(err).WithField("tenant_id", tenantID).Error("scheduler stopped with error")
			}
		}()
	}

	log.Info("signalbeam-executor started, waiting for shutdown signal")
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// tickSpec renders cfg.Reconcile.TickInterval as a robfig/cron "@every"
// expression; sub-minute cadences (the default is 30s) are only expressible
// that way in five-field cron.
func tickSpec(cfg *config.Config) string {
	return fmt.Sprintf("@every %s", cfg.Reconcile.TickInterval)
}

// runRelayLoop drains the transactional outbox onto Redis Streams on a
// fixed cadence until ctx is cancelled.
func runRelayLoop(ctx context.Context, relay *events.Relay, log logrus.FieldLogger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := relay.RelayOnce(ctx, 100); err != nil {
				log.WithError(err).Warn("outbox relay batch failed")
			} else if n > 0 {
				log.WithField("count", n).Debug("relayed outbox events")
			}
		}
	}
}
