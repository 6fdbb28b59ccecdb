package main

import (
	"fmt"

	"github.com/signalbeam/signalbeam/internal/alertengine"
	"github.com/signalbeam/signalbeam/internal/config"
	"github.com/signalbeam/signalbeam/internal/desiredstate"
	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/executor"
	"github.com/signalbeam/signalbeam/internal/planner"
	"github.com/signalbeam/signalbeam/internal/selector"
	"github.com/signalbeam/signalbeam/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// globalOptions holds the flags every subcommand shares: which config file
// to load and which tenant to scope the operation to.
type globalOptions struct {
	configPath string
	tenant     string
}

// Bind registers the global flags against fs.
func (o *globalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", o.configPath, "path to config.yaml (defaults to SIGNALBEAM_CONFIG or /etc/signalbeam/config.yaml)")
	fs.StringVar(&o.tenant, "tenant", o.tenant, "tenant id (UUID) to operate against")
}

func (o *globalOptions) tenantID() (domain.TenantID, error) {
	if o.tenant == "" {
		return domain.TenantID{}, fmt.Errorf("--tenant is required")
	}
	return domain.ParseTenantID(o.tenant)
}

// ctlServices bundles every component a subcommand can call into, wired
// against one store connection.
type ctlServices struct {
	store    *store.Store
	planner  *planner.Planner
	executor *executor.Executor
	log      logrus.FieldLogger
}

func dial(o *globalOptions) (*ctlServices, func() error, error) {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	path := o.configPath
	if path == "" {
		path = config.ConfigFile()
	}
	cfg, err := config.LoadOrGenerate(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := store.InitDB(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to store: %w", err)
	}
	st := store.NewStore(db, log.WithField("pkg", "store"))

	resolver := selector.NewResolver(st, st)
	pl := planner.New(st, st, resolver, log.WithField("pkg", "planner"))

	index := desiredstate.NewIndex(st)
	alerts := alertengine.NewEngine(st, log.WithField("pkg", "alertengine"))
	ex := executor.New(st, st, index, alerts, log.WithField("pkg", "executor")).
		WithLimits(cfg.Assignment.MaxRetries, cfg.Assignment.HeartbeatDeadline, cfg.Rollout.StallAlertAfter)

	svc := &ctlServices{store: st, planner: pl, executor: ex, log: log}
	return svc, st.Close, nil
}
