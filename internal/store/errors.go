package store

import "errors"

var (
	// ErrPermission means the store directory is not writable. Fatal,
	// surfaced immediately, never retried.
	ErrPermission = errors.New("store: directory not writable")

	// ErrQuotaExceeded means a write would exceed the disk budget. The
	// scheduler reacts with a proactive backup cleanup and one retry.
	ErrQuotaExceeded = errors.New("store: disk quota exceeded")

	// ErrNotFound means no blob exists under the requested name.
	ErrNotFound = errors.New("store: blob not found")

	// ErrCorrupted means a blob could not be decrypted, decompressed or
	// deserialized.
	ErrCorrupted = errors.New("store: blob corrupted")
)
