// Package cmap provides a sharded concurrent map.
//
// The map is split across a fixed number of shards, each guarded by its
// own RWMutex, so readers and writers of unrelated keys rarely contend.
// Iteration takes per-shard read locks and sees a best-effort, not
// consistent, view.
//
// Usage:
//
//	m := cmap.New[string, store.BlobInfo]()
//	m.Set("skidinc", info)
//	val, ok := m.Get("skidinc")
//
// All operations are safe for concurrent use.
package cmap
