// Package store is the gorm-backed persistence layer: one Postgres schema
// holding bundles, devices, groups, rollouts (with their phases and
// per-device assignments), alerts, and the transactional outbox.
package store

import (
	"fmt"

	"github.com/signalbeam/signalbeam/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

// InitDB opens the application connection pool and, when cfg.Metrics is
// enabled, registers gorm's prometheus plugin so connection-pool and DBStats
// gauges land alongside the executor's own collectors.
func InitDB(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := db.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.Database.Name,
			RefreshInterval: 15,
			MetricsCollector: []gormprometheus.MetricsCollector{
				&gormprometheus.Postgres{VariableNames: []string{"Threads_running"}},
			},
		})); err != nil {
			log.WithError(err).Warn("gorm prometheus plugin registration failed, continuing without it")
		}
	}
	return db, nil
}

// AutoMigrate creates or updates every table this package owns. It is the
// stand-in for a dedicated migration binary: fine for a single-tenant
// development deployment, replaced by versioned SQL migrations before a
// multi-tenant production rollout.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BundleModel{},
		&BundleVersionModel{},
		&DeviceModel{},
		&GroupModel{},
		&GroupMembershipModel{},
		&RolloutModel{},
		&RolloutPhaseModel{},
		&RolloutDeviceAssignmentModel{},
		&AlertModel{},
		&DesiredStateModel{},
		&OutboxEventModel{},
	)
}

// Store bundles every repository this module needs behind the interfaces
// internal/executor, internal/planner, internal/desiredstate,
// internal/alertengine, internal/selector and internal/events declare.
// Each repository is a thin method set over the same *gorm.DB so a single
// instance satisfies every Store/Source interface in the codebase.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewStore(db *gorm.DB, log logrus.FieldLogger) *Store {
	return &Store{db: db, log: log}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
