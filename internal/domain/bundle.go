package domain

import (
	"regexp"
	"time"
)

// BundleStatus is the lifecycle state of a BundleVersion.
type BundleStatus string

const (
	BundleStatusDraft      BundleStatus = "Draft"
	BundleStatusPublished  BundleStatus = "Published"
	BundleStatusDeprecated BundleStatus = "Deprecated"
)

// semverPattern is the version format required of a bundle version string.
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?$`)

// IsValidSemver reports whether version satisfies the bundle-version semver
// format required by the wire contract.
func IsValidSemver(version string) bool {
	return semverPattern.MatchString(version)
}

// RestartPolicy mirrors the edge agent's container restart contract; the
// core never interprets it beyond carrying it opaquely.
type RestartPolicy string

const (
	RestartPolicyAlways    RestartPolicy = "always"
	RestartPolicyOnFailure RestartPolicy = "on-failure"
	RestartPolicyNever     RestartPolicy = "never"
)

// ContainerSpec is one container in a bundle version
type ContainerSpec struct {
	Name          string
	Image         string
	Env           map[string]string
	Ports         []string
	Volumes       []string
	RestartPolicy RestartPolicy
}

// Bundle is the append-only named collection a tenant deploys as a unit.
type Bundle struct {
	ID            BundleID
	TenantID      TenantID
	Name          string
	Description   string
	CreatedAt     time.Time
	LatestVersion string
}

// BundleVersion is an immutable, semver-identified snapshot of a bundle's
// container specs. Only Status may change after creation.
type BundleVersion struct {
	BundleID   BundleID
	Version    string
	Containers []ContainerSpec
	Checksum   string
	SizeBytes  int64
	BlobURI    string
	Status     BundleStatus
	CreatedAt  time.Time
}

// Validate checks that Version is semver, that there is at least one
// container, that SizeBytes is not negative and that Status is a known
// value. It does not check Checksum, nor that fields stay unchanged between
// versions of the document.
func (v BundleVersion) Validate() *Error {
	if !IsValidSemver(v.Version) {
		return NewValidationError("bundle version %q is not valid semver", v.Version)
	}
	if len(v.Containers) == 0 {
		return NewValidationError("bundle version %s/%s has no containers", v.BundleID, v.Version)
	}
	if v.SizeBytes < 0 {
		return NewValidationError("bundle version %s/%s has negative size", v.BundleID, v.Version)
	}
	switch v.Status {
	case BundleStatusDraft, BundleStatusPublished, BundleStatusDeprecated:
	default:
		return NewValidationError("bundle version %s/%s has unknown status %q", v.BundleID, v.Version, v.Status)
	}
	return nil
}
