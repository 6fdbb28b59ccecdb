package store

import (
	"errors"

	"gorm.io/gorm"
)

// ignoreNotFound turns gorm's sentinel not-found error into (nil, nil) at
// the repository boundary, matching every Store interface's "return nil,
// nil for missing" convention.
func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
