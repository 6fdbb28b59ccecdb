package store

import (
	"time"

	"github.com/google/uuid"
)

// BundleModel is the row shape for domain.Bundle.
type BundleModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;index:idx_bundle_tenant_name,unique"`
	Name          string    `gorm:"index:idx_bundle_tenant_name,unique"`
	Description   string
	LatestVersion string
	CreatedAt     time.Time
}

func (BundleModel) TableName() string { return "bundles" }

// BundleVersionModel is the row shape for domain.BundleVersion. Containers
// is stored as a JSON blob since it is never queried by field, only read
// and written whole.
type BundleVersionModel struct {
	BundleID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Version    string    `gorm:"primaryKey"`
	Containers []byte    `gorm:"type:jsonb"`
	Checksum   string
	SizeBytes  int64
	BlobURI    string
	Status     string
	CreatedAt  time.Time
}

func (BundleVersionModel) TableName() string { return "bundle_versions" }

// DeviceModel is the row shape for domain.Device. Tags is stored as a
// Postgres text array so tag-query evaluation can push simple membership
// checks down to SQL; internal/tagquery still does the authoritative
// in-process evaluation.
type DeviceModel struct {
	DeviceID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID  `gorm:"type:uuid;index"`
	Tags             []string   `gorm:"type:text[]"`
	GroupID          *uuid.UUID `gorm:"type:uuid;index"`
	AssignedBundleID *uuid.UUID `gorm:"type:uuid"`
	DeploymentStatus string
}

func (DeviceModel) TableName() string { return "devices" }

type GroupModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;index"`
	Name      string
	Type      string
	TagQuery  string
	CreatedAt time.Time
}

func (GroupModel) TableName() string { return "groups" }

type GroupMembershipModel struct {
	GroupID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeviceID uuid.UUID `gorm:"type:uuid;primaryKey"`
	AddedAt  time.Time
	AddedBy  string
}

func (GroupMembershipModel) TableName() string { return "group_memberships" }

// RolloutModel is the row shape for domain.Rollout. Version is the OCC
// counter SaveRollout checks against; it is updated inside the
// same transaction that bumps phase/assignment rows and inserts outbox
// rows, never as an independent write.
type RolloutModel struct {
	RolloutID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID           uuid.UUID `gorm:"type:uuid;index"`
	BundleID           uuid.UUID `gorm:"type:uuid"`
	TargetVersion      string
	PreviousVersion    string
	Status             string
	Name               string
	Description        string
	CreatedBy          string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	FailureThreshold   float64
	CurrentPhaseNumber int
	Version            int

	Phases []RolloutPhaseModel `gorm:"foreignKey:RolloutID;references:RolloutID"`
}

func (RolloutModel) TableName() string { return "rollouts" }

type RolloutPhaseModel struct {
	PhaseID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	RolloutID            uuid.UUID `gorm:"type:uuid;index;index:idx_phase_rollout_number,unique"`
	PhaseNumber          int       `gorm:"index:idx_phase_rollout_number,unique"`
	Name                 string
	TargetDeviceCount    int
	TargetPercentage     float64
	Status               string
	StartedAt            *time.Time
	CompletedAt          *time.Time
	SuccessCount         int
	FailureCount         int
	MinHealthyDurationNs *int64

	DeviceAssignments []RolloutDeviceAssignmentModel `gorm:"foreignKey:PhaseID;references:PhaseID"`
}

func (RolloutPhaseModel) TableName() string { return "rollout_phases" }

type RolloutDeviceAssignmentModel struct {
	AssignmentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	RolloutID    uuid.UUID `gorm:"type:uuid;index;index:idx_assignment_rollout_device,unique"`
	PhaseID      uuid.UUID `gorm:"type:uuid;index"`
	DeviceID     uuid.UUID `gorm:"type:uuid;index:idx_assignment_rollout_device,unique"`
	Status       string
	AssignedAt   *time.Time
	ReconciledAt *time.Time
	ErrorMessage string
	RetryCount   int
}

func (RolloutDeviceAssignmentModel) TableName() string { return "rollout_device_assignments" }

type AlertModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;index"`
	Severity    string
	Type        string
	Title       string
	Description string
	DeviceID    *uuid.UUID `gorm:"type:uuid;index"`
	RolloutID   *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt   time.Time
	LastSeenAt  time.Time
	Status      string
	AckBy       string
	AckAt       *time.Time
	ResolvedAt  *time.Time
}

func (AlertModel) TableName() string { return "alerts" }

// DesiredStateModel is the row shape for desiredstate.Record: the single
// source of truth an edge agent reads.
type DesiredStateModel struct {
	DeviceID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID  `gorm:"type:uuid;index"`
	BundleID         *uuid.UUID `gorm:"type:uuid"`
	Version          *string
	ManifestURL      string
	Checksum         string
	SizeBytes        int64
	AssignedAt       time.Time
	AssignedBy       string
	DeploymentStatus string
}

func (DesiredStateModel) TableName() string { return "desired_states" }

// OutboxEventModel is the row shape for events.OutboxEvent.
type OutboxEventModel struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	TenantID    uuid.UUID `gorm:"type:uuid;index"`
	Subject     string
	Payload     []byte `gorm:"type:jsonb"`
	CreatedAt   time.Time
	PublishedAt *time.Time `gorm:"index"`
}

func (OutboxEventModel) TableName() string { return "outbox_events" }
