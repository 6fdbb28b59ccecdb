package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TenantID, DeviceID, BundleID, GroupID, RolloutID, PhaseID and AssignmentID
// are distinct nominal types over uuid.UUID so the compiler rejects mixing
// them even though they share an underlying representation.
type (
	TenantID     uuid.UUID
	DeviceID     uuid.UUID
	BundleID     uuid.UUID
	GroupID      uuid.UUID
	RolloutID    uuid.UUID
	PhaseID      uuid.UUID
	AssignmentID uuid.UUID
)

func NewTenantID() TenantID         { return TenantID(uuid.New()) }
func NewDeviceID() DeviceID         { return DeviceID(uuid.New()) }
func NewBundleID() BundleID         { return BundleID(uuid.New()) }
func NewGroupID() GroupID           { return GroupID(uuid.New()) }
func NewRolloutID() RolloutID       { return RolloutID(uuid.New()) }
func NewPhaseID() PhaseID           { return PhaseID(uuid.New()) }
func NewAssignmentID() AssignmentID { return AssignmentID(uuid.New()) }

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id DeviceID) String() string     { return uuid.UUID(id).String() }
func (id BundleID) String() string     { return uuid.UUID(id).String() }
func (id GroupID) String() string      { return uuid.UUID(id).String() }
func (id RolloutID) String() string    { return uuid.UUID(id).String() }
func (id PhaseID) String() string      { return uuid.UUID(id).String() }
func (id AssignmentID) String() string { return uuid.UUID(id).String() }

func (id TenantID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id DeviceID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id BundleID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id GroupID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id RolloutID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id PhaseID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id AssignmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TenantID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DeviceID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *BundleID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *GroupID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RolloutID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PhaseID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AssignmentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, fmt.Errorf("parsing tenant id %q: %w", s, err)
	}
	return TenantID(u), nil
}

func ParseDeviceID(s string) (DeviceID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DeviceID{}, fmt.Errorf("parsing device id %q: %w", s, err)
	}
	return DeviceID(u), nil
}

func ParseRolloutID(s string) (RolloutID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RolloutID{}, fmt.Errorf("parsing rollout id %q: %w", s, err)
	}
	return RolloutID(u), nil
}

func ParseBundleID(s string) (BundleID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return BundleID{}, fmt.Errorf("parsing bundle id %q: %w", s, err)
	}
	return BundleID(u), nil
}

func ParseGroupID(s string) (GroupID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GroupID{}, fmt.Errorf("parsing group id %q: %w", s, err)
	}
	return GroupID(u), nil
}
