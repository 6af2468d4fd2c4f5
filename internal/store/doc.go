// Package store implements the file-system layer of the save engine:
// atomic, checksummed, quota-enforced read and write of named save
// blobs in a single flat directory.
//
// A blob is either fully written under its final name or not present at
// all; writes go to a temporary path and are renamed into place. The
// checksum always covers the bytes that hit disk, so integrity checks
// are independent of whether compression or encryption was applied.
package store
