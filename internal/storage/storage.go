// Package storage holds errors shared by remote object-store clients.
package storage

import "errors"

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrAccessDenied   = errors.New("access denied")
)
