// Package desiredstate implements the Desired-State Index: the single source of truth an edge agent reads to learn which
// bundle version it should be running.
package desiredstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalbeam/signalbeam/internal/domain"
)

// Record is the persisted state for one device: the assignment the
// Executor wrote, plus the last status the device itself reported.
type Record struct {
	DeviceID         domain.DeviceID
	TenantID         domain.TenantID
	BundleID         *domain.BundleID
	Version          *string
	ManifestURL      string
	Checksum         string
	SizeBytes        int64
	AssignedAt       time.Time
	AssignedBy       string
	DeploymentStatus domain.DeploymentStatus
}

// Document is the wire shape the edge agent pulls. A device with a target
// marshals its bundleId/version/etc fields directly; a device with none
// marshals as {"deviceId": "...", "desiredState": null} and nothing else.
type Document struct {
	DeviceID    string  `json:"deviceId"`
	BundleID    *string `json:"bundleId,omitempty"`
	Version     *string `json:"version,omitempty"`
	ManifestURL *string `json:"manifestUrl,omitempty"`
	Checksum    *string `json:"checksum,omitempty"`
	SizeBytes   *int64  `json:"sizeBytes,omitempty"`
	AssignedAt  *string `json:"assignedAt,omitempty"`
}

// MarshalJSON implements the two-shape wire contract: absent the target
// fields are dropped and a literal "desiredState": null takes their place.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.BundleID == nil {
		return json.Marshal(struct {
			DeviceID     string  `json:"deviceId"`
			DesiredState *string `json:"desiredState"`
		}{DeviceID: d.DeviceID})
	}
	type alias Document
	return json.Marshal(alias(d))
}

// Store is the persistence boundary the Index writes and reads through.
type Store interface {
	GetDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*Record, error)
	UpsertDesiredState(ctx context.Context, rec Record) error
	ClearDesiredState(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, by string) error
	UpdateReportedStatus(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, status domain.DeploymentStatus) error
}

// Index is the Desired-State Index service.
type Index struct {
	store Store
}

func NewIndex(store Store) *Index {
	return &Index{store: store}
}

// Assign writes a new target (bundleId, version) for a device. Assigning
// the device's already-current (bundleId, version) is a no-op: assignedAt
// is not bumped and no write occurs.
func (idx *Index) Assign(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, bundle domain.BundleID, version string, manifestURL, checksum string, sizeBytes int64, by string) error {
	existing, err := idx.store.GetDesiredState(ctx, tenant, device)
	if err != nil {
		return domain.NewTransientError(err, "loading desired state for device %s", device)
	}
	if existing != nil && existing.BundleID != nil && *existing.BundleID == bundle && existing.Version != nil && *existing.Version == version {
		return nil
	}

	rec := Record{
		DeviceID:    device,
		TenantID:    tenant,
		BundleID:    &bundle,
		Version:     &version,
		ManifestURL: manifestURL,
		Checksum:    checksum,
		SizeBytes:   sizeBytes,
		AssignedAt:  time.Now().UTC(),
		AssignedBy:  by,
	}
	if err := idx.store.UpsertDesiredState(ctx, rec); err != nil {
		return domain.NewTransientError(err, "writing desired state for device %s", device)
	}
	return nil
}

// Clear removes the target for a device, e.g. on rollback to "no desired
// state" when there is no previous version to reassign (reassignment itself
// goes through Assign).
func (idx *Index) Clear(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, by string) error {
	if err := idx.store.ClearDesiredState(ctx, tenant, device, by); err != nil {
		return domain.NewTransientError(err, "clearing desired state for device %s", device)
	}
	return nil
}

// RecordReportedStatus projects an agent report's deploymentStatus onto the
// index.
func (idx *Index) RecordReportedStatus(ctx context.Context, tenant domain.TenantID, device domain.DeviceID, status domain.DeploymentStatus) error {
	if err := idx.store.UpdateReportedStatus(ctx, tenant, device, status); err != nil {
		return domain.NewTransientError(err, "recording reported status for device %s", device)
	}
	return nil
}

// Render produces the read-path wire document for device.
// A device with no record gets {"deviceId": "...", "desiredState": null}.
func (idx *Index) Render(ctx context.Context, tenant domain.TenantID, device domain.DeviceID) (*Document, error) {
	rec, err := idx.store.GetDesiredState(ctx, tenant, device)
	if err != nil {
		return nil, domain.NewTransientError(err, "loading desired state for device %s", device)
	}
	if rec == nil || rec.BundleID == nil || rec.Version == nil {
		return &Document{DeviceID: device.String()}, nil
	}

	bundleID := rec.BundleID.String()
	version := *rec.Version
	manifestURL := rec.ManifestURL
	checksum := rec.Checksum
	sizeBytes := rec.SizeBytes
	assignedAt := rec.AssignedAt.UTC().Format(time.RFC3339)

	return &Document{
		DeviceID:    device.String(),
		BundleID:    &bundleID,
		Version:     &version,
		ManifestURL: &manifestURL,
		Checksum:    &checksum,
		SizeBytes:   &sizeBytes,
		AssignedAt:  &assignedAt,
	}, nil
}

// FormatChecksum renders a raw sha256 digest in the "sha256:<64 hex>" form
// desired-state documents use for their checksum field.
func FormatChecksum(sha256Hex string) string {
	return fmt.Sprintf("sha256:%s", sha256Hex)
}
