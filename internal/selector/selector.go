// Package selector expands a target selector (AllDevices,
// GroupId, TagQuery, DeviceIds) into a deterministic, lexicographically
// ordered device-id list. It is the thin wiring layer
// between the pure tagquery language and storage, keeping selector-language
// evaluation (internal/tagquery) separate from how matches get resolved
// against persisted devices and groups.
package selector

import (
	"context"
	"sort"

	"github.com/signalbeam/signalbeam/internal/domain"
	"github.com/signalbeam/signalbeam/internal/tagquery"
)

// DeviceSource is the read-only view into tenant devices the resolver needs.
// Implemented by internal/store.
type DeviceSource interface {
	ListDeviceIDs(ctx context.Context, tenant domain.TenantID) ([]domain.DeviceID, error)
	ListDevices(ctx context.Context, tenant domain.TenantID) ([]domain.Device, error)
	GetDevices(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.Device, error)
}

// GroupSource is the read-only view into groups and static memberships.
type GroupSource interface {
	GetGroup(ctx context.Context, tenant domain.TenantID, id domain.GroupID) (*domain.Group, error)
	ListStaticMembers(ctx context.Context, tenant domain.TenantID, group domain.GroupID) ([]domain.DeviceID, error)
}

// Resolver expands target selectors into ordered device-id lists.
type Resolver struct {
	devices DeviceSource
	groups  GroupSource
}

func NewResolver(devices DeviceSource, groups GroupSource) *Resolver {
	return &Resolver{devices: devices, groups: groups}
}

// Expand implements four selector forms. All paths return
// the same ordered-by-deviceId list so materialization (internal/planner) is
// deterministic.
func (r *Resolver) Expand(ctx context.Context, tenant domain.TenantID, sel domain.TargetSelector) ([]domain.DeviceID, error) {
	switch sel.Kind {
	case domain.SelectorAllDevices:
		ids, err := r.devices.ListDeviceIDs(ctx, tenant)
		if err != nil {
			return nil, domain.NewTransientError(err, "listing tenant devices")
		}
		return sortedCopy(ids), nil

	case domain.SelectorGroupID:
		return r.expandGroup(ctx, tenant, sel.GroupID)

	case domain.SelectorTagQuery:
		return r.expandTagQuery(ctx, tenant, sel.TagQuery)

	case domain.SelectorDeviceIDs:
		return r.expandDeviceIDs(ctx, tenant, sel.DeviceIDs)

	default:
		return nil, domain.NewValidationError("unknown target selector kind %q", sel.Kind)
	}
}

func (r *Resolver) expandGroup(ctx context.Context, tenant domain.TenantID, groupID domain.GroupID) ([]domain.DeviceID, error) {
	group, err := r.groups.GetGroup(ctx, tenant, groupID)
	if err != nil {
		return nil, domain.NewTransientError(err, "loading group %s", groupID)
	}
	if group == nil {
		return nil, domain.NewNotFoundError("group %s not found", groupID)
	}

	switch group.Type {
	case domain.GroupTypeStatic:
		ids, err := r.groups.ListStaticMembers(ctx, tenant, groupID)
		if err != nil {
			return nil, domain.NewTransientError(err, "listing members of group %s", groupID)
		}
		return sortedCopy(ids), nil
	case domain.GroupTypeDynamic:
		return r.expandTagQuery(ctx, tenant, group.TagQuery)
	default:
		return nil, domain.NewFatalError(nil, "group %s has unknown type %q", groupID, group.Type)
	}
}

// expandTagQuery evaluates expr against every tenant device's tag set.
// Dynamic-group evaluation reuses this path.
func (r *Resolver) expandTagQuery(ctx context.Context, tenant domain.TenantID, expr string) ([]domain.DeviceID, error) {
	query, err := tagquery.Compile(expr)
	if err != nil {
		return nil, err
	}

	devices, err := r.devices.ListDevices(ctx, tenant)
	if err != nil {
		return nil, domain.NewTransientError(err, "listing tenant devices")
	}

	var matched []domain.DeviceID
	for _, d := range devices {
		if query.Matches(d.Tags) {
			matched = append(matched, d.DeviceID)
		}
	}
	return sortedCopy(matched), nil
}

func (r *Resolver) expandDeviceIDs(ctx context.Context, tenant domain.TenantID, ids []domain.DeviceID) ([]domain.DeviceID, error) {
	found, err := r.devices.GetDevices(ctx, tenant, ids)
	if err != nil {
		return nil, domain.NewTransientError(err, "validating device ids")
	}
	foundSet := make(map[domain.DeviceID]struct{}, len(found))
	for _, d := range found {
		foundSet[d.DeviceID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := foundSet[id]; !ok {
			return nil, domain.NewValidationError("device %s does not belong to tenant", id)
		}
	}
	return sortedCopy(ids), nil
}

func sortedCopy(ids []domain.DeviceID) []domain.DeviceID {
	out := make([]domain.DeviceID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
