package executor

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/sirupsen/logrus"
)

// Scheduler fans ReconcileTick calls across a fixed number of shards, one
// goroutine each, so that no rollout is ever ticked by two goroutines at
// once while unrelated rollouts still progress concurrently. A robfig/cron job drives the periodic
// sweep, which queues each rollout through Wake. ReportDeviceState and
// Resume do not use Wake; they call ReconcileTick directly.
type Scheduler struct {
	executor     *Executor
	store        Store
	tenant       domain.TenantID
	log          logrus.FieldLogger
	shards       []chan domain.RolloutID
	cron         *cron.Cron
	tickSpec     string
	tickDeadline time.Duration
}

// NewScheduler builds a Scheduler with shardCount actor goroutines. tickSpec
// is a standard five-field cron expression (e.g. "*/30 * * * *" for every
// 30s is not expressible in five-field cron, so sub-minute ticking is
// expected to come from a "@every" spec instead, e.g. "@every 30s").
// tickDeadline bounds each ReconcileTick; a tick past it is aborted and
// picked up again by the next sweep.
func NewScheduler(store Store, ex *Executor, tenant domain.TenantID, shardCount int, tickSpec string, tickDeadline time.Duration, log logrus.FieldLogger) *Scheduler {
	if shardCount < 1 {
		shardCount = 1
	}
	if tickDeadline <= 0 {
		tickDeadline = 30 * time.Second
	}
	shards := make([]chan domain.RolloutID, shardCount)
	for i := range shards {
		shards[i] = make(chan domain.RolloutID, 64)
	}
	return &Scheduler{
		executor:     ex,
		store:        store,
		tenant:       tenant,
		log:          log,
		shards:       shards,
		tickSpec:     tickSpec,
		tickDeadline: tickDeadline,
	}
}

// Run starts the shard workers and the periodic sweep, blocking until ctx is
// canceled. It returns an error only when tickSpec does not parse; otherwise
// it returns nil once ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	for i, shard := range s.shards {
		go s.runShard(ctx, i, shard)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.tickSpec, func() { s.sweep(ctx) }); err != nil {
		return domain.NewFatalError(err, "invalid tick schedule %q", s.tickSpec)
	}
	s.cron.Start()

	s.log.WithField("tick_spec", s.tickSpec).Info("rollout scheduler started")
	<-ctx.Done()
	s.log.Info("rollout scheduler stopping")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// sweep lists every non-terminal rollout and enqueues a tick for each,
// per periodic-reconciliation requirement.
func (s *Scheduler) sweep(ctx context.Context) {
	ids, err := s.store.ListNonTerminalRolloutIDs(ctx, s.tenant)
	if err != nil {
		s.log.WithError(err).Error("listing non-terminal rollouts for sweep")
		return
	}
	for _, id := range ids {
		s.Wake(id)
	}
}

// Wake requests an immediate tick for rolloutID, routed to its shard by a
// stable hash so the same rollout is never ticked concurrently. It never
// blocks: a full shard queue means a sweep is already backed up and the next
// periodic sweep will catch this rollout regardless.
func (s *Scheduler) Wake(rolloutID domain.RolloutID) {
	shard := s.shards[shardFor(rolloutID, len(s.shards))]
	select {
	case shard <- rolloutID:
	default:
		s.log.WithField("rollout_id", rolloutID).Warn("shard queue full, dropping wake (next sweep will retry)")
	}
}

func (s *Scheduler) runShard(ctx context.Context, index int, queue chan domain.RolloutID) {
	log := s.log.WithField("shard", index)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-queue:
			tickCtx, cancel := context.WithTimeout(ctx, s.tickDeadline)
			if err := s.executor.ReconcileTick(tickCtx, s.tenant, id); err != nil {
				log.WithError(err).WithField("rollout_id", id).Warn("reconcile tick failed")
			}
			cancel()
		}
	}
}

func shardFor(id domain.RolloutID, shardCount int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.String()))
	return int(h.Sum32()) % shardCount
}
