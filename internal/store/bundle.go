package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/signalbeam/signalbeam/internal/domain"
	"gorm.io/gorm"
)

// GetBundleVersion implements executor.BundleSource and planner.BundleSource.
func (s *Store) GetBundleVersion(ctx context.Context, tenant domain.TenantID, bundle domain.BundleID, version string) (*domain.BundleVersion, error) {
	var row BundleVersionModel
	err := s.db.WithContext(ctx).
		Where("bundle_id = ? AND version = ?", uuid.UUID(bundle), version).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bundleVersionFromModel(row)
}

// CreateBundleVersion inserts a new immutable bundle version row, and the
// parent Bundle row if it does not exist yet.
func (s *Store) CreateBundleVersion(ctx context.Context, tenant domain.TenantID, bundleID domain.BundleID, name string, v domain.BundleVersion) error {
	containers, err := json.Marshal(v.Containers)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bundle BundleModel
		err := tx.Where("id = ?", uuid.UUID(bundleID)).First(&bundle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bundle = BundleModel{
				ID:            uuid.UUID(bundleID),
				TenantID:      uuid.UUID(tenant),
				Name:          name,
				LatestVersion: v.Version,
				CreatedAt:     v.CreatedAt,
			}
			if err := tx.Create(&bundle).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			bundle.LatestVersion = v.Version
			if err := tx.Save(&bundle).Error; err != nil {
				return err
			}
		}

		row := BundleVersionModel{
			BundleID:   uuid.UUID(bundleID),
			Version:    v.Version,
			Containers: containers,
			Checksum:   v.Checksum,
			SizeBytes:  v.SizeBytes,
			BlobURI:    v.BlobURI,
			Status:     string(v.Status),
			CreatedAt:  v.CreatedAt,
		}
		return tx.Create(&row).Error
	})
}

// UpdateBundleVersionStatus implements the "only Status may change after
// creation" contract from domain.BundleVersion's doc comment.
func (s *Store) UpdateBundleVersionStatus(ctx context.Context, bundle domain.BundleID, version string, status domain.BundleStatus) error {
	res := s.db.WithContext(ctx).Model(&BundleVersionModel{}).
		Where("bundle_id = ? AND version = ?", uuid.UUID(bundle), version).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewNotFoundError("bundle version %s/%s not found", bundle, version)
	}
	return nil
}

func bundleVersionFromModel(row BundleVersionModel) (*domain.BundleVersion, error) {
	var containers []domain.ContainerSpec
	if len(row.Containers) > 0 {
		if err := json.Unmarshal(row.Containers, &containers); err != nil {
			return nil, err
		}
	}
	return &domain.BundleVersion{
		BundleID:   domain.BundleID(row.BundleID),
		Version:    row.Version,
		Containers: containers,
		Checksum:   row.Checksum,
		SizeBytes:  row.SizeBytes,
		BlobURI:    row.BlobURI,
		Status:     domain.BundleStatus(row.Status),
		CreatedAt:  row.CreatedAt,
	}, nil
}
