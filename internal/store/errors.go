package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	// ErrConditionFailed means a conditional write found the item missing or
	// in a state other than the expected one. Nothing was written.
	ErrConditionFailed = errors.New("condition failed")
)
